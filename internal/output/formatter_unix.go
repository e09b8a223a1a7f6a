//go:build !windows

package output

// enableANSI reports whether escape sequences can be written to stdout.
// Unix terminals interpret them natively.
func enableANSI() bool {
	return true
}
