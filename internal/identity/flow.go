package identity

import (
	"net/url"
	"strings"

	"classbridge/internal/driver"
)

const (
	GoogleLoginURL = "https://accounts.google.com/ServiceLogin?continue=https://classroom.google.com/u/0/h&passive=true"
	BrightspaceURL = "https://tdsb.elearningontario.ca/d2l/home"
)

// Target recognizes the page a flow is trying to reach.
type Target struct {
	Hosts []string
	// PathPrefix must also match when set. Brightspace serves its unauthenticated
	// landing page from the same host as the homepage.
	PathPrefix string
	// Exclude lists path fragments of pages on the destination host that still
	// mean "not signed in".
	Exclude []string
}

func (dst Target) Matches(rawURL string) bool {
	if !driver.HostMatches(rawURL, dst.Hosts...) {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if dst.PathPrefix != "" && !strings.HasPrefix(path, dst.PathPrefix) {
		return false
	}
	for _, ex := range dst.Exclude {
		if strings.Contains(path, ex) {
			return false
		}
	}
	return true
}

// Flow describes one portal's route through the identity broker.
type Flow struct {
	Name        string
	StartURL    string
	Destination Target
	BrokerHosts []string
	// EmailStep is set when the start page asks for an email address before
	// handing off to the broker.
	EmailStep bool
	// Landing is clicked on the start page to reach the broker, empty when
	// the start page is itself a form.
	Landing driver.Candidates
	// Dismiss is clicked once on the destination if it shows up.
	Dismiss driver.Candidates
}

var brokerHosts = []string{"microsoftonline", "login.microsoft", "login.live"}

// ClassroomFlow signs in through Google, which forwards the school domain to
// the broker.
func ClassroomFlow() Flow {
	return Flow{
		Name:     "google-classroom",
		StartURL: GoogleLoginURL,
		Destination: Target{
			Hosts: []string{"classroom.google"},
		},
		BrokerHosts: brokerHosts,
		EmailStep:   true,
	}
}

// BrightspaceFlow starts on the Brightspace landing page and goes to the
// broker through its staff and students button.
func BrightspaceFlow() Flow {
	return Flow{
		Name:     "brightspace",
		StartURL: BrightspaceURL,
		Destination: Target{
			Hosts:      []string{"elearningontario"},
			PathPrefix: "/d2l/",
			Exclude:    []string{"/d2l/login", "/d2l/lp/auth"},
		},
		BrokerHosts: brokerHosts,
		Landing: driver.Candidates{
			driver.HasText("a", "Staff And Students Login"),
			driver.HasText("button", "Staff And Students Login"),
			driver.HasText("a", "Staff and Students"),
			driver.HasText("a", "Staff"),
		},
		Dismiss: driver.Candidates{
			driver.HasText("button", "Got It"),
			driver.HasText("a", "Got It"),
		},
	}
}

var (
	emailFields = driver.Candidates{
		driver.CSS(`input[type="email"]`),
		driver.CSS(`input#identifierId`),
		driver.CSS(`input[name="identifier"]`),
	}
	emailNext = driver.Candidates{
		driver.CSS(`#identifierNext`),
		driver.HasText("button", "Next"),
		driver.CSS(`input[type="submit"]`),
		driver.CSS(`button[type="submit"]`),
	}
	// shown by the Google account chooser instead of the email field
	emailAlternatives = driver.Candidates{
		driver.HasText(`div[role="link"], li`, "Use another account"),
		driver.HasText("button", "Sign in"),
	}

	usernameFields = driver.Candidates{
		driver.CSS(`input[name="loginfmt"]`),
		driver.CSS(`input[name="UserName"]`),
		driver.CSS(`input[name="login"]`),
		driver.CSS(`input[type="email"]`),
	}
	passwordFields = driver.Candidates{
		driver.CSS(`input[name="passwd"]`),
		driver.CSS(`input[name="Password"]`),
		driver.CSS(`input[name="password"]`),
		driver.CSS(`input[type="password"]`),
	}
	brokerSubmit = driver.Candidates{
		driver.CSS(`#idSIButton9`),
		driver.CSS(`input[type="submit"]`),
		driver.CSS(`button[type="submit"]`),
	}
	staySignedIn = driver.Candidates{
		driver.HasText(`#idSIButton9`, "Yes"),
		driver.CSS(`input[type="submit"][value="Yes"]`),
		driver.HasText("button", "Yes"),
	}
	useAnotherAccount = driver.Candidates{
		driver.CSS(`#otherTile`),
		driver.HasText(`div[role="button"]`, "Use another account"),
		driver.HasText("a", "Use another account"),
		driver.HasText("button", "Use another account"),
	}
)

// WrongAccountMarkers appear on broker pages when a cached identity other
// than the configured one was picked.
var WrongAccountMarkers = []string{
	"This username may be incorrect",
	"We couldn't find an account with that username",
	"AADSTS50020",
	"signed in with the wrong account",
}
