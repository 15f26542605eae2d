package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// TestAudience is the audience the engine accepts by default.
const TestAudience = "mc-review"

// GenerateTestJWT creates a test JWT token for use when verification is disabled.
// The token has a valid structure but no signature (alg: none).
// state is ignored for CMS_USER tokens.
func GenerateTestJWT(sub, state, role string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{
		"sub":  sub,
		"aud":  TestAudience,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	if state != "" && role != "CMS_USER" {
		claims["state"] = state
	}
	payload, _ := json.Marshal(claims)

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, state, role string) string {
	return "Bearer " + GenerateTestJWT(sub, state, role)
}
