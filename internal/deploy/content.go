package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// SourceReadError reports a build output entry that could not be read.
type SourceReadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (sourceError SourceReadError) Error() string {
	return fmt.Sprintf("read build output %s: %v", sourceError.Path, sourceError.Err)
}

// Unwrap exposes the underlying error.
func (sourceError SourceReadError) Unwrap() error {
	return sourceError.Err
}

// ContentSynchronizer mirrors a source directory into a working copy.
type ContentSynchronizer struct {
	fileSystem afero.Fs
}

// NewContentSynchronizer constructs a ContentSynchronizer over fileSystem.
func NewContentSynchronizer(fileSystem afero.Fs) ContentSynchronizer {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	return ContentSynchronizer{fileSystem: fileSystem}
}

// Synchronize makes the tree under workDirectory, apart from its .git entry, an exact copy of
// sourceDirectory. Entries named .git inside the source are not copied. File modes are preserved.
// Symbolic links are recreated with the same target when the file system supports links, so a
// link to a directory is committed as a link. Failures reading the source are SourceReadError.
func (synchronizer ContentSynchronizer) Synchronize(sourceDirectory string, workDirectory string) error {
	if clearError := synchronizer.clear(workDirectory); clearError != nil {
		return clearError
	}
	return afero.Walk(synchronizer.fileSystem, sourceDirectory, func(path string, info os.FileInfo, walkError error) error {
		if walkError != nil {
			return SourceReadError{Path: path, Err: walkError}
		}
		relativePath, relativeError := filepath.Rel(sourceDirectory, path)
		if relativeError != nil {
			return relativeError
		}
		if relativePath == "." {
			return nil
		}
		if info.Name() == gitMetadataDirectoryConstant {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		destinationPath := filepath.Join(workDirectory, relativePath)
		if info.Mode()&os.ModeSymlink != 0 {
			return synchronizer.copyLink(path, destinationPath, info.Mode().Perm())
		}
		if info.IsDir() {
			return synchronizer.fileSystem.MkdirAll(destinationPath, info.Mode().Perm()|0o700)
		}
		return synchronizer.copyFile(path, destinationPath, info.Mode().Perm())
	})
}

func (synchronizer ContentSynchronizer) clear(workDirectory string) error {
	entries, readError := afero.ReadDir(synchronizer.fileSystem, workDirectory)
	if readError != nil {
		return readError
	}
	for _, entry := range entries {
		if entry.Name() == gitMetadataDirectoryConstant {
			continue
		}
		if removeError := synchronizer.fileSystem.RemoveAll(filepath.Join(workDirectory, entry.Name())); removeError != nil {
			return removeError
		}
	}
	return nil
}

func (synchronizer ContentSynchronizer) copyFile(sourcePath string, destinationPath string, mode os.FileMode) error {
	sourceFile, openError := synchronizer.fileSystem.Open(sourcePath)
	if openError != nil {
		return SourceReadError{Path: sourcePath, Err: openError}
	}
	defer sourceFile.Close()

	destinationFile, createError := synchronizer.fileSystem.OpenFile(destinationPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if createError != nil {
		return createError
	}
	if _, copyError := io.Copy(destinationFile, sourceFile); copyError != nil {
		destinationFile.Close()
		return copyError
	}
	if closeError := destinationFile.Close(); closeError != nil {
		return closeError
	}
	return synchronizer.fileSystem.Chmod(destinationPath, mode)
}

func (synchronizer ContentSynchronizer) copyLink(sourcePath string, destinationPath string, mode os.FileMode) error {
	reader, readsLinks := synchronizer.fileSystem.(afero.LinkReader)
	linker, writesLinks := synchronizer.fileSystem.(afero.Linker)
	if !readsLinks || !writesLinks {
		return synchronizer.copyFile(sourcePath, destinationPath, mode)
	}
	linkTarget, readError := reader.ReadlinkIfPossible(sourcePath)
	if readError != nil {
		return SourceReadError{Path: sourcePath, Err: readError}
	}
	return linker.SymlinkIfPossible(linkTarget, destinationPath)
}
