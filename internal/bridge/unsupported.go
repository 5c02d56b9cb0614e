//go:build !linux

package bridge

import "context"

// Unsupported is the Bridge compiled in for platforms without a native
// implementation in this tree. Every method returns ErrUnsupportedPlatform;
// it exists so memscand still builds and starts (scan/filter requests just
// fail cleanly) on a host the real bridge hasn't been ported to yet.
type Unsupported struct{}

// NewPlatformDefault returns the stub bridge for GOOS values this tree has
// no native implementation for.
func NewPlatformDefault() Bridge { return Unsupported{} }

func (Unsupported) Read(context.Context, int, uint64, int) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}
func (Unsupported) Write(context.Context, int, uint64, []byte) (int, error) {
	return 0, ErrUnsupportedPlatform
}
func (Unsupported) Suspend(context.Context, int) (bool, error) { return false, ErrUnsupportedPlatform }
func (Unsupported) Resume(context.Context, int) (bool, error)  { return false, ErrUnsupportedPlatform }
func (Unsupported) EnumProcesses(context.Context) ([]ProcessInfo, error) {
	return nil, ErrUnsupportedPlatform
}
func (Unsupported) EnumModules(context.Context, int) ([]Module, error) {
	return nil, ErrUnsupportedPlatform
}
func (Unsupported) EnumRegions(context.Context, int) ([]Region, error) {
	return nil, ErrUnsupportedPlatform
}
func (Unsupported) SetWatchpoint(context.Context, int, uint64, int, WatchType) error {
	return ErrUnsupportedPlatform
}
func (Unsupported) RemoveWatchpoint(context.Context, int, uint64) error {
	return ErrUnsupportedPlatform
}
func (Unsupported) SetBreakpoint(context.Context, int, uint64, int) error {
	return ErrUnsupportedPlatform
}
func (Unsupported) RemoveBreakpoint(context.Context, int, uint64) error {
	return ErrUnsupportedPlatform
}
func (Unsupported) RegisterEventCallback(EventCallback) {}
func (Unsupported) GetApplicationInfo(context.Context, int) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}
