//go:build !linux && !darwin && !freebsd

package diagnostics

func resourceLimits() []limit {
	return nil
}
