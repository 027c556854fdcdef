package avstor

// File format constants. These fix the on-disk layout; changing any of them
// breaks compatibility with existing data files.
const (
	// PageSize is the size of every page in the file (header included)
	PageSize = 4096

	// MaxTreeHeight caps AVL tree height and sizes every traversal stack
	MaxTreeHeight = 64

	// MaxKeyLen is the maximum node name length in bytes
	MaxKeyLen = 240

	// MaxStringLen is the maximum short string payload length in bytes
	MaxStringLen = 250

	// MaxBinaryLen is the maximum short binary payload length in bytes
	MaxBinaryLen = 250
)

// Node types stored in the node header type field.
const (
	// TypeKey is an interior node carrying subkey and value collections
	TypeKey = 0

	// TypeInt32 is a 32-bit integer value
	TypeInt32 = 1

	// TypeInt64 is a 64-bit integer value
	TypeInt64 = 2

	// TypeDouble is an IEEE-754 double value
	TypeDouble = 3

	// TypeString is a short string value (<= MaxStringLen bytes)
	TypeString = 4

	// TypeBinary is a short binary value (<= MaxBinaryLen bytes)
	TypeBinary = 5

	// TypeLongString is a long string envelope (chunk format reserved)
	TypeLongString = 6

	// TypeLongBinary is a long binary envelope (chunk format reserved)
	TypeLongBinary = 7

	// TypeLink is a reference to another node
	TypeLink = 8
)

// Flags for Find, Delete and inorder traversal.
const (
	// Keys selects the parent's subkey collection
	Keys = 0

	// Values selects the parent's value collection
	Values = 1

	// Ascending iterates names in comparator order
	Ascending = 0

	// Descending iterates names in reverse comparator order
	Descending = 2
)

// Open flags.
const (
	// OpenReadWrite opens the store for reading and writing
	OpenReadWrite = 0x00000001

	// OpenReadOnly opens the store for reading only
	OpenReadOnly = 0x00000002

	// OpenCreate creates (truncating) the data file
	OpenCreate = 0x00000004

	// OpenShared is accepted but not consulted: the file is opened the
	// same way with or without it, and no file lock is taken either way
	OpenShared = 0x00000008

	// OpenAutosave lets eviction write dirty pages to disk mid-operation.
	// Without it, evicting a dirty page aborts the operation.
	OpenAutosave = 0x00000100
)

// File header flags.
const (
	// FileFlag64Bit marks a file using 64-bit node references
	FileFlag64Bit = 0x00000001

	// FileFlagBigEndian marks a big-endian file (not produced by this
	// implementation; recognized so open can reject it cleanly)
	FileFlagBigEndian = 0x00000002
)

// Page types.
const (
	pageTypeHeader = 0x00
	pageTypeData   = 0x01
)

// pageDirty marks a modified page in the status byte.
const pageDirty = 0x80

// invalidIndex terminates the slot freelist chain.
const invalidIndex = 0

// Cache geometry.
const (
	// cacheAssoc is the associativity of a cache row
	cacheAssoc = 8

	// cacheRowGrowth is how many entries a row grows by when every
	// resident page is locked and nothing can be evicted
	cacheRowGrowth = 4

	// MinCacheKiB is the smallest accepted cache size in KiB
	MinCacheKiB = 64
)

// Node header encoding: bits 0..1 balance factor biased by +1, bits 2..5
// node type, bits 6..15 node size divided by 4.
const (
	nodeBFMask   = 0x0003
	nodeTypeMask = 0x0F << 2
	nodeSizeMask = 0xFFC0
)

// alignNode rounds a node size up to 4-byte alignment.
func alignNode(sz int) int {
	return (sz + 3) &^ 0x3
}
