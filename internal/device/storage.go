package device

// Storage classifies a buffer by which execution contexts can access it
// directly. A buffer's storage class never changes after allocation.
type Storage uint8

const (
	// StorageHost memory is CPU-resident and always host-accessible.
	StorageHost Storage = iota
	// StorageDevice memory is accelerator-local; the host must copy
	// through a staging buffer to read or write it.
	StorageDevice
	// StorageManaged memory is accessible from both sides and migrated
	// by the backend. Not every backend supports it.
	StorageManaged
)

func (s Storage) String() string {
	switch s {
	case StorageHost:
		return "host"
	case StorageDevice:
		return "device"
	case StorageManaged:
		return "managed"
	default:
		return "invalid"
	}
}
