package core

// Client is a connected notification consumer as seen by the core layer.
type Client struct {
	ID       string
	UserID   int64
	Username string
	Events   chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string, userID int64, username string) *Client {
	if username == "" {
		username = id
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Events:   make(chan *Event, 16),
	}
}
