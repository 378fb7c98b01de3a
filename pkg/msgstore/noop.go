package msgstore

// NoopStore stores nothing. Sessions using it answer every resend request
// with gap fills.
type NoopStore struct{}

func NewNoopStore() NoopStore {
	return NoopStore{}
}

func (NoopStore) Put(int, []byte) error {
	return nil
}

func (NoopStore) Get(int, []byte) (int, error) {
	return NotFound, nil
}

func (NoopStore) Iterator(int, int) Iterator {
	return emptyIterator{}
}

func (NoopStore) Clean() {}

var _ Store = NoopStore{}
