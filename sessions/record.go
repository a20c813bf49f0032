package sessions

import "time"

// DatabaseSession binds one database-session token to a connection string
// and the refresh token that may rotate it.
type DatabaseSession struct {
	ConnectionString string `json:"connectionString"`
	RefreshToken     string `json:"refreshToken"`
}

// Record is the per-user session state, keyed by email. It exists only after
// a successful Google code exchange.
type Record struct {
	Email                string                     `json:"email"`
	Picture              string                     `json:"picture,omitempty"`
	IdentityAccessToken  string                     `json:"identityAccessToken"`
	IdentityToken        string                     `json:"identityToken"`
	IdentityRefreshToken string                     `json:"identityRefreshToken"`
	DatabaseSessions     map[string]DatabaseSession `json:"databaseSessions"`
	CreatedAt            time.Time                  `json:"createdAt"`
	UpdatedAt            time.Time                  `json:"updatedAt"`
}

// NewRecord creates a record with an empty binding map
func NewRecord(email string) *Record {
	now := time.Now().UTC()
	return &Record{
		Email:            email,
		DatabaseSessions: make(map[string]DatabaseSession),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.DatabaseSessions = make(map[string]DatabaseSession, len(r.DatabaseSessions))
	for k, v := range r.DatabaseSessions {
		c.DatabaseSessions[k] = v
	}
	return &c
}

// Binding returns the database session stored under sessionToken
func (r *Record) Binding(sessionToken string) (DatabaseSession, bool) {
	if r == nil || r.DatabaseSessions == nil {
		return DatabaseSession{}, false
	}
	b, ok := r.DatabaseSessions[sessionToken]
	return b, ok
}

// Bind adds or replaces the binding for sessionToken
func (r *Record) Bind(sessionToken string, session DatabaseSession) {
	if r.DatabaseSessions == nil {
		r.DatabaseSessions = make(map[string]DatabaseSession)
	}
	r.DatabaseSessions[sessionToken] = session
}

// Unbind removes the binding for sessionToken, reporting whether it existed
func (r *Record) Unbind(sessionToken string) bool {
	if _, ok := r.DatabaseSessions[sessionToken]; !ok {
		return false
	}
	delete(r.DatabaseSessions, sessionToken)
	return true
}
