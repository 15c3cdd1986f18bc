//go:build !linux

package fs

func watchLimitWarnings() []string {
	return nil
}
