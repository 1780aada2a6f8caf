package identity

import "time"

type State int

const (
	Start State = iota
	EmailEntry
	BrokerRedirectWait
	BrokerUsernameEntry
	WrongAccountRecovery
	BrokerPasswordEntry
	StaySignedInPrompt
	Destination
	// Failed ends a negotiation that could not find its next form. The
	// session is left wherever it was.
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case EmailEntry:
		return "email-entry"
	case BrokerRedirectWait:
		return "broker-redirect-wait"
	case BrokerUsernameEntry:
		return "broker-username-entry"
	case WrongAccountRecovery:
		return "wrong-account-recovery"
	case BrokerPasswordEntry:
		return "broker-password-entry"
	case StaySignedInPrompt:
		return "stay-signed-in-prompt"
	case Destination:
		return "destination"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (s State) terminal() bool {
	return s == Destination || s == Failed
}

// Profile holds every bound a negotiation waits for.
type Profile struct {
	// FieldWait bounds the race between a form field and the destination.
	FieldWait time.Duration
	// FallbackWait bounds each secondary selector attempt.
	FallbackWait    time.Duration
	RedirectWait    time.Duration
	PasswordWait    time.Duration
	StayPromptWait  time.Duration
	StayPostClick   time.Duration
	Settle          time.Duration
	DestinationWait time.Duration
}

// GenerousProfile is for the first login of a session, when the broker has
// no session to reuse and its interstitial pages can take a while to submit.
func GenerousProfile() Profile {
	return Profile{
		FieldWait:       30 * time.Second,
		FallbackWait:    5 * time.Second,
		RedirectWait:    20 * time.Second,
		PasswordWait:    15 * time.Second,
		StayPromptWait:  8 * time.Second,
		StayPostClick:   3 * time.Second,
		Settle:          2 * time.Second,
		DestinationWait: 45 * time.Second,
	}
}

// FastProfile is for a later login that usually completes on its own.
func FastProfile() Profile {
	return Profile{
		FieldWait:       15 * time.Second,
		FallbackWait:    3 * time.Second,
		RedirectWait:    20 * time.Second,
		PasswordWait:    15 * time.Second,
		StayPromptWait:  3 * time.Second,
		StayPostClick:   1 * time.Second,
		Settle:          1 * time.Second,
		DestinationWait: 30 * time.Second,
	}
}
