package devices

import "github.com/pkg/errors"

var (
	NotConfiguredError = errors.New("device not configured")
	IsNotConfigured    = isErrorFunc(NotConfiguredError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
