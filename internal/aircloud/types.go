package aircloud

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// Credentials identify one AirCloud Home account. The password is never
// printed or logged.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) String() string {
	return "Credentials{Email: " + c.Email + ", Password: [redacted]}"
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", c.Email))
}

// Session is the bearer session issued by sign-in. The client does not
// track its lifetime; a rejected token surfaces as ErrAuthentication.
type Session struct {
	token *oauth2.Token
}

// AccessToken returns the bearer token.
func (s Session) AccessToken() string {
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

// RefreshToken returns the refresh token issued with the session.
func (s Session) RefreshToken() string {
	if s.token == nil {
		return ""
	}
	return s.token.RefreshToken
}

func (s Session) valid() bool {
	return s.token != nil && s.token.AccessToken != ""
}

func (s Session) setAuthHeader(req *http.Request) {
	s.token.SetAuthHeader(req)
}

// FamilyGroup is one home under the account. FamilyID is 0 when the
// vendor omitted the identifier.
type FamilyGroup struct {
	FamilyID int64
	Name     string
	Raw      json.RawMessage
}

// ControlCommand is the complete field set of a general control command.
// The vendor requires every field on every command. Empty strings and a
// zero temperature fall back to the defaults below; Humidity is only sent
// when set.
type ControlCommand struct {
	Power          string
	Mode           string
	FanSpeed       string
	FanSwing       string
	IDUTemperature float64
	Humidity       *int
}

// Defaults applied to incomplete control commands.
const (
	DefaultPower       = "ON"
	DefaultMode        = "AUTO"
	DefaultFanSpeed    = "AUTO"
	DefaultFanSwing    = "AUTO"
	DefaultTemperature = 22.0
)

// controlRequest is the wire body of a general control command.
type controlRequest struct {
	Power          string  `json:"power"`
	Mode           string  `json:"mode"`
	FanSpeed       string  `json:"fanSpeed"`
	FanSwing       string  `json:"fanSwing"`
	IDUTemperature float64 `json:"iduTemperature"`
	Humidity       *int    `json:"humidity,omitempty"`
}

func (c ControlCommand) request() controlRequest {
	r := controlRequest{
		Power:          orDefault(c.Power, DefaultPower),
		Mode:           orDefault(c.Mode, DefaultMode),
		FanSpeed:       orDefault(c.FanSpeed, DefaultFanSpeed),
		FanSwing:       orDefault(c.FanSwing, DefaultFanSwing),
		IDUTemperature: c.IDUTemperature,
		Humidity:       c.Humidity,
	}
	if r.IDUTemperature == 0 {
		r.IDUTemperature = DefaultTemperature
	}
	return r
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// CommandAck is the vendor's acknowledgement of a control command.
type CommandAck struct {
	CommandID string
	Raw       json.RawMessage
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

