package install

import "errors"

var (
	ErrDirectoryNotEmpty       = errors.New("destination directory already exists and is not empty")
	ErrAuthRequired            = errors.New("this GitHub API URL requires authentication, configure a GitHub token first")
	ErrPluginFileNotFound      = errors.New("could not find the main plugin file")
	ErrThemeStylesheetNotFound = errors.New("theme is missing style.css")
	ErrInvalidType             = errors.New("invalid package type, must be plugin or theme")
	ErrInvalidSlug             = errors.New("could not derive a directory name from the slug")
	ErrActivationFailed        = errors.New("activation failed")
)
