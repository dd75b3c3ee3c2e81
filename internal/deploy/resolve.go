package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tyemirov/gitdeploy/internal/gitrepo"
	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	aliasResolutionMessageTemplate = "remote %q is not a URL, an existing path or a remote of %s"
	remoteParseMessageTemplate     = "remote: %v"
	homeDirectoryPrefixConstant    = "~"
)

// RemoteResolver turns configured remotes into the URLs stored on targets.
type RemoteResolver struct {
	repositoryManager *gitrepo.RepositoryManager
	fileSystem        afero.Fs
	homeDirectory     func() (string, error)
}

// NewRemoteResolver constructs a RemoteResolver. Aliases are looked up through repositoryManager.
func NewRemoteResolver(repositoryManager *gitrepo.RepositoryManager, fileSystem afero.Fs, homeDirectory func() (string, error)) *RemoteResolver {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	return &RemoteResolver{repositoryManager: repositoryManager, fileSystem: fileSystem, homeDirectory: homeDirectory}
}

// ResolveTargets returns copies of targets whose RemoteURL is a sanitized URL or an absolute path.
// Aliases are read from the remotes of sourceRepository. Credentials embedded in a URL are moved into
// Credentials unless the target already carries explicit ones.
func (resolver *RemoteResolver) ResolveTargets(executionContext context.Context, sourceRepository string, targets []Target, redactor redaction.Redactor) ([]Target, error) {
	resolved := make([]Target, 0, len(targets))
	var problems []error
	for _, target := range targets {
		remoteURL, embedded, resolveError := resolver.resolveRemote(executionContext, sourceRepository, target.RemoteURL)
		if resolveError != nil {
			problems = append(problems, newTargetErrorMessage(ErrInvalidConfiguration, target.Name, StageValidate, redactor.With(embedded.Secrets()...), remoteParseMessageTemplate, resolveError))
			resolved = append(resolved, target)
			continue
		}
		target.RemoteURL = remoteURL
		if target.Credentials.IsZero() {
			target.Credentials = embedded
		}
		resolved = append(resolved, target)
	}
	return resolved, errors.Join(problems...)
}

func (resolver *RemoteResolver) resolveRemote(executionContext context.Context, sourceRepository string, remote string) (string, Credentials, error) {
	trimmed := strings.TrimSpace(remote)
	if len(trimmed) == 0 {
		return "", Credentials{}, nil
	}

	pathExists, _ := afero.Exists(resolver.fileSystem, resolver.expandHome(trimmed))
	switch ClassifyRemote(trimmed, pathExists) {
	case RemoteKindURL:
		return SplitRemoteCredentials(trimmed)
	case RemoteKindSCP:
		return trimmed, Credentials{}, nil
	case RemoteKindPath:
		return absolutePath(resolver.expandHome(trimmed)), Credentials{}, nil
	}

	aliasURL, lookupError := resolver.repositoryManager.GetRemoteURL(executionContext, sourceRepository, trimmed)
	if lookupError != nil || len(strings.TrimSpace(aliasURL)) == 0 {
		return "", Credentials{}, fmt.Errorf(aliasResolutionMessageTemplate, trimmed, sourceRepository)
	}
	aliasURL = strings.TrimSpace(aliasURL)
	if ClassifyRemote(aliasURL, false) == RemoteKindPath && !filepath.IsAbs(aliasURL) {
		return absolutePath(filepath.Join(sourceRepository, aliasURL)), Credentials{}, nil
	}
	return SplitRemoteCredentials(aliasURL)
}

func (resolver *RemoteResolver) expandHome(path string) string {
	if !strings.HasPrefix(path, homeDirectoryPrefixConstant) || resolver.homeDirectory == nil {
		return path
	}
	home, homeError := resolver.homeDirectory()
	if homeError != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, homeDirectoryPrefixConstant))
}
