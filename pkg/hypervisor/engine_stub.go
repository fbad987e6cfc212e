//go:build !darwin && !linux

package hypervisor

// NewEngine returns an error on unsupported platforms.
func NewEngine() (Engine, error) {
	return nil, ErrUnsupportedPlatform
}
