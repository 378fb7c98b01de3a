package engine

import (
	"context"
	"errors"
	"io/fs"
	"log"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/pkg/config"
	"github.com/fr3shw3b/fix-session-engine/pkg/msgstore"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv loads a .env file into the environment when one exists.
func LoadEnv(path string) {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load environment variables: ", err)
	}
}

func NewLogger(level string) *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetFormatter(customFormatter)
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// Runtime is one configured session with its persistent state.
type Runtime struct {
	Session *session.Session
	State   sessions.State
	flusher *sessions.Flusher
	logger  *logrus.Logger
}

// Open builds the session described by conf. Sequence numbers live in
// conf.StateFile when set and in memory otherwise; sent messages are kept
// for resends in a ring of conf.StoreCapacity bytes.
func Open(conf *config.Config, role session.Role, logger *logrus.Logger, clk clock.Clock) (*Runtime, error) {
	var state sessions.State = sessions.NewMemoryState()
	if conf.StateFile != "" {
		mapped, err := sessions.OpenMappedState(conf.StateFile, logger)
		if err != nil {
			return nil, err
		}
		state = mapped
	}

	var store msgstore.Store
	if conf.StoreCapacity > 0 {
		store = msgstore.NewFailSafe(
			conf.SessionID.String(),
			msgstore.NewRingStore(conf.StoreCapacity),
			msgstore.DefaultFailSafeSettings(),
			logger,
		)
	}

	sess, err := session.New(conf.SessionID, role, conf.Settings, state, store,
		session.WithLogger(logger),
		session.WithClock(clk),
		session.WithMessageLog(session.NewLoggerMessageLog(logger, conf.SessionID.String())),
		session.WithHandler(&logHandler{logger: logger}),
	)
	if err != nil {
		state.Close()
		return nil, err
	}
	return &Runtime{
		Session: sess,
		State:   state,
		flusher: sessions.NewFlusher(state, conf.FlushInterval, clk, logger),
		logger:  logger,
	}, nil
}

// RunFlusher flushes the state periodically until ctx is cancelled.
func (r *Runtime) RunFlusher(ctx context.Context) error {
	r.flusher.Run(ctx)
	return nil
}

func (r *Runtime) Close() error {
	if err := r.State.Flush(); err != nil {
		r.logger.Warn("failed to flush session state: ", err)
	}
	return r.State.Close()
}

type logHandler struct {
	logger *logrus.Logger
}

func (h *logHandler) OnMessage(s *session.Session, msg session.Message) {
	h.logger.WithFields(logrus.Fields{
		"session": s.ID().String(),
		"msgType": msg.MsgType.String(),
		"seqNum":  msg.SeqNum,
		"possDup": msg.PossDup,
	}).Info("application message received")
}
