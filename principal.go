package chatclient

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/Novack-secure/novack-chat-client/chat"
)

// principalFromToken derives the local principal from the bearer token's
// claims without validating the signature; validation is the server's
// job and the token is treated as opaque otherwise. Unresolvable fields
// stay empty, which the optimistic-send path tolerates.
func principalFromToken(token string) chat.Participant {
	p := chat.Participant{Type: chat.SenderEmployee}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return p
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return p
	}

	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := claims[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}

	p.ID = str("sub", "userId", "user_id", "id")
	p.Name = str("name", "fullName", "full_name")
	p.Email = str("email")
	switch str("userType", "user_type", "role") {
	case "visitor":
		p.Type = chat.SenderVisitor
	case "bot":
		p.Type = chat.SenderBot
	}
	return p
}
