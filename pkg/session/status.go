package session

type Status int32

const (
	Disconnected Status = iota
	Connecting
	LogonSent
	AwaitingLogon
	ApplicationConnected
	InitiatedLogout
)

var statusNames = map[Status]string{
	Disconnected:         "Disconnected",
	Connecting:           "Connecting",
	LogonSent:            "LogonSent",
	AwaitingLogon:        "AwaitingLogon",
	ApplicationConnected: "ApplicationConnected",
	InitiatedLogout:      "InitiatedLogout",
}

func (s Status) String() string {
	name, exists := statusNames[s]
	if exists {
		return name
	}
	return "Unknown"
}

// Role decides which side sends the first Logon.
type Role int

const (
	Initiator Role = iota
	Acceptor
)

func (r Role) String() string {
	if r == Acceptor {
		return "acceptor"
	}
	return "initiator"
}
