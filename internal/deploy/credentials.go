package deploy

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

const (
	// AuthRemoteNameConstant names the transient remote that carries the authenticated URL.
	// It exists only in the environment of the git processes that need it.
	AuthRemoteNameConstant   = "gitdeploy-auth"
	// OriginRemoteNameConstant names the persisted remote of a working copy. It never holds credentials.
	OriginRemoteNameConstant = "origin"

	gitConfigCountVariableConstant = "GIT_CONFIG_COUNT"
	gitConfigKeyVariableConstant   = "GIT_CONFIG_KEY_0"
	gitConfigValueVariableConstant = "GIT_CONFIG_VALUE_0"
	authRemoteURLKeyConstant       = "remote." + AuthRemoteNameConstant + ".url"
	httpSchemeConstant             = "http"
	httpsSchemeConstant            = "https"
)

var (
	scpLikeRemotePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9._-]+:`)

	errCredentialsRequireHTTP = errors.New(credentialsTransportMessage)
	errRemoteURLMissing       = errors.New("remote URL is required")
)

// RemoteKind classifies how a configured remote is addressed.
type RemoteKind string

// Remote kinds.
const (
	RemoteKindURL   RemoteKind = "url"
	RemoteKindSCP   RemoteKind = "scp"
	RemoteKindPath  RemoteKind = "path"
	RemoteKindAlias RemoteKind = "alias"
)

// ClassifyRemote reports how remote is addressed. pathExists tells whether remote names an existing path.
func ClassifyRemote(remote string, pathExists bool) RemoteKind {
	trimmed := strings.TrimSpace(remote)
	switch {
	case strings.Contains(trimmed, "://"):
		return RemoteKindURL
	case scpLikeRemotePattern.MatchString(trimmed):
		return RemoteKindSCP
	case pathExists, strings.HasPrefix(trimmed, "/"), strings.HasPrefix(trimmed, "."), strings.HasPrefix(trimmed, "~"):
		return RemoteKindPath
	default:
		return RemoteKindAlias
	}
}

// SplitRemoteCredentials removes user information embedded in an http(s) remote URL and returns
// the sanitized URL together with the credentials it carried. Other remotes are returned unchanged.
func SplitRemoteCredentials(remote string) (string, Credentials, error) {
	trimmed := strings.TrimSpace(remote)
	if !strings.Contains(trimmed, "://") {
		return trimmed, Credentials{}, nil
	}
	parsed, parseError := url.Parse(trimmed)
	if parseError != nil {
		return "", Credentials{}, errors.New("remote URL is not parseable")
	}
	if parsed.User == nil {
		return trimmed, Credentials{}, nil
	}

	credentials := Credentials{Username: parsed.User.Username()}
	if password, hasPassword := parsed.User.Password(); hasPassword {
		credentials.Token = password
	} else {
		credentials = Credentials{Token: parsed.User.Username()}
	}
	parsed.User = nil
	return parsed.String(), credentials, nil
}

// AuthenticatedURL builds the URL used for network operations. Credentials are placed in the user
// information of an http(s) URL; without credentials the remote is returned unchanged.
// The returned value must only ever reach git through AuthEnvironment.
func AuthenticatedURL(remoteURL string, credentials Credentials) (string, error) {
	trimmed := strings.TrimSpace(remoteURL)
	if len(trimmed) == 0 {
		return "", errRemoteURLMissing
	}
	if credentials.IsZero() {
		return trimmed, nil
	}
	if !isHTTPRemote(trimmed) {
		return "", errCredentialsRequireHTTP
	}

	parsed, parseError := url.Parse(trimmed)
	if parseError != nil {
		return "", errors.New("remote URL is not parseable")
	}
	username := strings.TrimSpace(credentials.Username)
	token := strings.TrimSpace(credentials.Token)
	if len(username) == 0 {
		parsed.User = url.User(token)
	} else {
		parsed.User = url.UserPassword(username, token)
	}
	return parsed.String(), nil
}

// AuthEnvironment returns the environment that defines the transient AuthRemoteNameConstant remote
// for a single git process. The URL travels through the process environment instead of argv or
// .git/config.
func AuthEnvironment(remoteURL string, credentials Credentials) (map[string]string, error) {
	authenticatedURL, urlError := AuthenticatedURL(remoteURL, credentials)
	if urlError != nil {
		return nil, urlError
	}
	return map[string]string{
		gitConfigCountVariableConstant: "1",
		gitConfigKeyVariableConstant:   authRemoteURLKeyConstant,
		gitConfigValueVariableConstant: authenticatedURL,
	}, nil
}

func isHTTPRemote(remote string) bool {
	parsed, parseError := url.Parse(strings.TrimSpace(remote))
	if parseError != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == httpSchemeConstant || scheme == httpsSchemeConstant) && len(parsed.Host) > 0
}
