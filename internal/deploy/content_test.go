package deploy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/gitdeploy/internal/deploy"
)

const (
	testSourceDirectoryConstant = "/build/dist"
	testWorkDirectoryConstant   = "/cache/work"
)

func writeFile(testInstance *testing.T, fileSystem afero.Fs, path string, content string, mode os.FileMode) {
	testInstance.Helper()
	require.NoError(testInstance, fileSystem.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(testInstance, afero.WriteFile(fileSystem, path, []byte(content), mode))
}

func TestSynchronizeMirrorsSourceAndKeepsMetadata(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	writeFile(testInstance, fileSystem, filepath.Join(testSourceDirectoryConstant, "index.html"), "<h1>new</h1>", 0o644)
	writeFile(testInstance, fileSystem, filepath.Join(testSourceDirectoryConstant, "assets", "app.js"), "run()", 0o644)
	writeFile(testInstance, fileSystem, filepath.Join(testSourceDirectoryConstant, "bin", "serve.sh"), "#!/bin/sh", 0o755)
	writeFile(testInstance, fileSystem, filepath.Join(testSourceDirectoryConstant, ".git", "HEAD"), "ref: refs/heads/main", 0o644)

	writeFile(testInstance, fileSystem, filepath.Join(testWorkDirectoryConstant, ".git", "HEAD"), "ref: refs/heads/gh-pages", 0o644)
	writeFile(testInstance, fileSystem, filepath.Join(testWorkDirectoryConstant, "index.html"), "<h1>old</h1>", 0o644)
	writeFile(testInstance, fileSystem, filepath.Join(testWorkDirectoryConstant, "stale", "old.css"), "body{}", 0o644)

	synchronizer := deploy.NewContentSynchronizer(fileSystem)
	require.NoError(testInstance, synchronizer.Synchronize(testSourceDirectoryConstant, testWorkDirectoryConstant))

	index, readError := afero.ReadFile(fileSystem, filepath.Join(testWorkDirectoryConstant, "index.html"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "<h1>new</h1>", string(index))

	script, statError := fileSystem.Stat(filepath.Join(testWorkDirectoryConstant, "bin", "serve.sh"))
	require.NoError(testInstance, statError)
	require.Equal(testInstance, os.FileMode(0o755), script.Mode().Perm())

	exists, existsError := afero.Exists(fileSystem, filepath.Join(testWorkDirectoryConstant, "stale"))
	require.NoError(testInstance, existsError)
	require.False(testInstance, exists)

	head, headError := afero.ReadFile(fileSystem, filepath.Join(testWorkDirectoryConstant, ".git", "HEAD"))
	require.NoError(testInstance, headError)
	require.Equal(testInstance, "ref: refs/heads/gh-pages", string(head))

	jsExists, _ := afero.Exists(fileSystem, filepath.Join(testWorkDirectoryConstant, "assets", "app.js"))
	require.True(testInstance, jsExists)
}

func TestSynchronizeEmptySourceClearsWorkingCopy(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(testInstance, fileSystem.MkdirAll(testSourceDirectoryConstant, 0o755))
	writeFile(testInstance, fileSystem, filepath.Join(testWorkDirectoryConstant, ".git", "HEAD"), "ref: refs/heads/gh-pages", 0o644)
	writeFile(testInstance, fileSystem, filepath.Join(testWorkDirectoryConstant, "index.html"), "<h1>old</h1>", 0o644)

	require.NoError(testInstance, deploy.NewContentSynchronizer(fileSystem).Synchronize(testSourceDirectoryConstant, testWorkDirectoryConstant))

	entries, readError := afero.ReadDir(fileSystem, testWorkDirectoryConstant)
	require.NoError(testInstance, readError)
	require.Len(testInstance, entries, 1)
	require.Equal(testInstance, ".git", entries[0].Name())
}

func TestSynchronizeMissingSourceFails(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(testInstance, fileSystem.MkdirAll(testWorkDirectoryConstant, 0o755))
	require.Error(testInstance, deploy.NewContentSynchronizer(fileSystem).Synchronize(testSourceDirectoryConstant, testWorkDirectoryConstant))
}

func TestSynchronizeRecreatesSymbolicLinks(testInstance *testing.T) {
	root := testInstance.TempDir()
	sourceDirectory := filepath.Join(root, "dist")
	workDirectory := filepath.Join(root, "work")
	fileSystem := afero.NewOsFs()
	writeFile(testInstance, fileSystem, filepath.Join(sourceDirectory, "assets", "app.js"), "run()", 0o644)
	writeFile(testInstance, fileSystem, filepath.Join(sourceDirectory, "index.html"), "<h1>site</h1>", 0o644)
	require.NoError(testInstance, os.Symlink("assets", filepath.Join(sourceDirectory, "static")))
	require.NoError(testInstance, os.Symlink("index.html", filepath.Join(sourceDirectory, "home.html")))
	require.NoError(testInstance, fileSystem.MkdirAll(filepath.Join(workDirectory, ".git"), 0o755))

	require.NoError(testInstance, deploy.NewContentSynchronizer(fileSystem).Synchronize(sourceDirectory, workDirectory))

	testCases := []struct {
		name           string
		link           string
		expectedTarget string
		readThrough    string
		expectedData   string
	}{
		{name: "directory_link", link: "static", expectedTarget: "assets", readThrough: filepath.Join("static", "app.js"), expectedData: "run()"},
		{name: "file_link", link: "home.html", expectedTarget: "index.html", readThrough: "home.html", expectedData: "<h1>site</h1>"},
	}
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			linkTarget, readlinkError := os.Readlink(filepath.Join(workDirectory, testCase.link))
			require.NoError(testInstance, readlinkError)
			require.Equal(testInstance, testCase.expectedTarget, linkTarget)
			content, readError := os.ReadFile(filepath.Join(workDirectory, testCase.readThrough))
			require.NoError(testInstance, readError)
			require.Equal(testInstance, testCase.expectedData, string(content))
		})
	}

	require.NoError(testInstance, deploy.NewContentSynchronizer(fileSystem).Synchronize(sourceDirectory, workDirectory))
	linkInfo, lstatError := os.Lstat(filepath.Join(workDirectory, "static"))
	require.NoError(testInstance, lstatError)
	require.NotZero(testInstance, linkInfo.Mode()&os.ModeSymlink)
}

func TestSynchronizeReportsUnreadableSource(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(testInstance, fileSystem.MkdirAll(testWorkDirectoryConstant, 0o755))

	synchronizeError := deploy.NewContentSynchronizer(fileSystem).Synchronize(testSourceDirectoryConstant, testWorkDirectoryConstant)
	var sourceError deploy.SourceReadError
	require.ErrorAs(testInstance, synchronizeError, &sourceError)
	require.Equal(testInstance, testSourceDirectoryConstant, sourceError.Path)
}
