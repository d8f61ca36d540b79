package portal

import (
	"encoding/json"
	"time"
)

// Identity is the authenticated principal as known to the client. It is
// always fetched from the backend, never reconstructed from local state.
type Identity struct {
	ID         int64     `json:"id,omitempty"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	Phone      string    `json:"number,omitempty"`
	Role       Role      `json:"user_type"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"create_date,omitempty"`
	SchoolID   *int64    `json:"skola,omitempty"`
	SchoolName string    `json:"skola_nosaukums,omitempty"`
}

// identityPayload mirrors the backend's profile representation. Field names
// follow the Django serializers, including the denormalized school columns.
type identityPayload struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	LastName   string `json:"last_name"`
	Number     string `json:"number"`
	UserType   string `json:"user_type"`
	IsActive   *bool  `json:"is_active"`
	CreateDate string `json:"create_date"`
	School     *int64 `json:"skola"`
	SchoolName string `json:"skola_nosaukums"`
}

// decodeIdentity parses a profile body and normalizes the role into the
// closed set at the ingestion boundary.
func decodeIdentity(body []byte) (*Identity, error) {
	payload := identityPayload{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.toIdentity(), nil
}

func (p identityPayload) toIdentity() *Identity {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}

	id := &Identity{
		ID:         p.ID,
		Email:      p.Email,
		Name:       p.Name,
		LastName:   p.LastName,
		Phone:      p.Number,
		Role:       NormalizeRole(p.UserType),
		Active:     active,
		SchoolID:   p.School,
		SchoolName: p.SchoolName,
	}

	if p.CreateDate != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, p.CreateDate); err == nil {
				id.CreatedAt = t
				break
			}
		}
	}

	return id
}

// DisplayName returns the best human-readable label for the identity.
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "" && i.LastName != "":
		return i.Name + " " + i.LastName
	case i.Name != "":
		return i.Name
	default:
		return i.Email
	}
}

// clone returns a copy so callers can never mutate store-held state.
func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.SchoolID != nil {
		v := *i.SchoolID
		c.SchoolID = &v
	}
	return &c
}
