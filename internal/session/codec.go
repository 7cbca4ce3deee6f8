package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// FragmentPrefix marks a location fragment that carries an encoded state
const FragmentPrefix = "#"

// ErrInvalidToken is returned when a token cannot be decoded into a State
var ErrInvalidToken = errors.New("invalid state token")

// wireState is the structured text form of a State. code is required; the
// other pointer fields let tokens produced by older playground builds (code,
// minify and entryStrategy only) fall back to defaults for the fields they do
// not carry.
type wireState struct {
	Code          *string `json:"code"`
	Minify        *string `json:"minify,omitempty"`
	EntryStrategy *string `json:"entryStrategy,omitempty"`
	Transpile     *bool   `json:"transpile,omitempty"`
	View          *string `json:"view,omitempty"`
}

// Encode serializes s into a URL-fragment-safe token (without the prefix)
func Encode(s State) (string, error) {
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("cannot encode state: %w", err)
	}

	minify := string(s.Minify)
	entry := string(s.EntryStrategy)
	view := string(s.View)
	wire := wireState{
		Code:          &s.Source,
		Minify:        &minify,
		EntryStrategy: &entry,
		Transpile:     &s.Transpile,
		View:          &view,
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode reverses Encode. Standard and URL base64 alphabets are accepted, with
// or without padding, so links created by older builds keep working.
func Decode(token string) (State, error) {
	data, err := decodeBase64(token)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var wire wireState
	if err := json.Unmarshal(data, &wire); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// null, {} and objects without code unmarshal cleanly but carry no document
	if wire.Code == nil {
		return State{}, fmt.Errorf("%w: missing code", ErrInvalidToken)
	}

	s := Default()
	s.Source = *wire.Code
	if wire.Minify != nil {
		if s.Minify, err = ParseMinifyMode(*wire.Minify); err != nil {
			return State{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if wire.EntryStrategy != nil {
		if s.EntryStrategy, err = ParseEntryStrategy(*wire.EntryStrategy); err != nil {
			return State{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if wire.Transpile != nil {
		s.Transpile = *wire.Transpile
	}
	if wire.View != nil {
		if s.View, err = ParseView(*wire.View); err != nil {
			return State{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return s, nil
}

func decodeBase64(token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}

	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(token)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ToFragment encodes s as a location fragment, including the prefix
func ToFragment(s State) (string, error) {
	token, err := Encode(s)
	if err != nil {
		return "", err
	}
	return FragmentPrefix + token, nil
}

// FromFragment reconstructs the state carried by a location fragment. It fails
// closed: a missing prefix or any malformed token yields Default().
func FromFragment(fragment string) State {
	if !strings.HasPrefix(fragment, FragmentPrefix) {
		return Default()
	}

	s, err := Decode(strings.TrimPrefix(fragment, FragmentPrefix))
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring malformed state fragment")
		return Default()
	}
	return s
}
