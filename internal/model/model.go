// Package model holds the domain types shared across the pipeline stages:
// pages, tablespaces, encryption headers, SDI-derived table metadata and
// decoded row output. Plain structs, no behavior beyond small helpers.
package model

import "fmt"

// PageType mirrors the on-disk FIL_PAGE_TYPE values relevant to a
// single-table .ibd file.
type PageType uint16

const (
	PageTypeAllocated PageType = 0
	PageTypeUndoLog   PageType = 2
	PageTypeInode     PageType = 3
	PageTypeIBufBitmap PageType = 5
	PageTypeSys       PageType = 6
	PageTypeTrxSys    PageType = 7
	PageTypeFspHdr    PageType = 8
	PageTypeXdes      PageType = 9
	PageTypeBlob      PageType = 10
	PageTypeZblob     PageType = 11
	PageTypeZblob2    PageType = 12
	PageTypeRseg      PageType = 18
	PageTypeLobIndex  PageType = 22
	PageTypeLobData   PageType = 23
	PageTypeLobFirst  PageType = 24
	PageTypeZLobFirst PageType = 25
	PageTypeZLobData  PageType = 26
	PageTypeZLobIndex PageType = 27
	PageTypeZLobFrag  PageType = 28
	PageTypeZLobFragEntry PageType = 29
	PageTypeSDI       PageType = 17853
	PageTypeRTree     PageType = 17854
	PageTypeIndex     PageType = 17855
)

// String renders the page type the way diagnostic output and the
// "parse" CLI mode's debug column name it.
func (t PageType) String() string {
	switch t {
	case PageTypeAllocated:
		return "ALLOCATED"
	case PageTypeUndoLog:
		return "UNDO_LOG"
	case PageTypeInode:
		return "INODE"
	case PageTypeIBufBitmap:
		return "IBUF_BITMAP"
	case PageTypeSys:
		return "SYS"
	case PageTypeTrxSys:
		return "TRX_SYS"
	case PageTypeFspHdr:
		return "FSP_HDR"
	case PageTypeXdes:
		return "XDES"
	case PageTypeBlob, PageTypeZblob, PageTypeZblob2:
		return "BLOB"
	case PageTypeRseg:
		return "RSEG_ARRAY"
	case PageTypeLobIndex:
		return "LOB_INDEX"
	case PageTypeLobData:
		return "LOB_DATA"
	case PageTypeLobFirst:
		return "LOB_FIRST"
	case PageTypeZLobFirst:
		return "ZLOB_FIRST"
	case PageTypeZLobData:
		return "ZLOB_DATA"
	case PageTypeZLobIndex:
		return "ZLOB_INDEX"
	case PageTypeZLobFrag:
		return "ZLOB_FRAG"
	case PageTypeZLobFragEntry:
		return "ZLOB_FRAG_ENTRY"
	case PageTypeSDI:
		return "SDI"
	case PageTypeRTree:
		return "RTREE"
	case PageTypeIndex:
		return "INDEX"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// IsIndexLike reports whether pages of this type carry COMPACT records
// in a page-directory structure (INDEX, RTREE and SDI pages all do).
func (t PageType) IsIndexLike() bool {
	return t == PageTypeIndex || t == PageTypeRTree || t == PageTypeSDI
}

// Page is one decoded (decrypted and/or decompressed) page plus the
// bookkeeping the rest of the pipeline needs about its origin.
type Page struct {
	Number       uint32
	SpaceID      uint32
	Type         PageType
	LSN          uint64
	Checksum     uint32
	Data         []byte // logical size (16KiB) for inflated pages; other pages keep their physical size
	WasEncrypted bool
	WasCompressed bool
}

// FspFlags decodes the InnoDB tablespace flags word (FSP_SPACE_FLAGS)
// stored in the FSP_HDR page, describing page geometry and features.
type FspFlags struct {
	Raw             uint32
	PostAntelope    bool
	ZipSSize        uint32 // 0 = uncompressed
	AtomicBlobs     bool
	PageSSize       uint32
	DataDirectory   bool
	Shared          bool
	Temporary       bool
	Encryption      bool
	SDIFlag         bool
}

// Tablespace is the top-level handle for one open .ibd file: its
// geometry, encryption status and space id, threaded through every
// pipeline stage that needs to know "how big is a physical page here"
// or "is this space encrypted".
type Tablespace struct {
	SpaceID       uint32
	Flags         FspFlags
	PhysicalPageSize int // compressed page size on disk, or LogicalPageSize
	LogicalPageSize  int // always 16384 for this tool's supported versions
	PageCount     uint32
	Encrypted     bool
	EncryptionInfo *EncryptionHeader
}

// EncryptionHeader is the parsed 107-byte per-tablespace encryption blob
// (magic + decrypted key/iv + checksum).
type EncryptionHeader struct {
	Magic      string
	MasterKeyID uint32
	ServerUUID string
	Key        [32]byte
	IV         [16]byte
	Checksum   uint32
}

// MasterKey is one (server_uuid, master_key_id) -> key-bytes entry read
// from a Percona keyring file.
type MasterKey struct {
	ServerUUID  string
	MasterKeyID uint32
	KeyBytes    []byte
}

// Column describes one table column as derived from SDI JSON, enough to
// drive COMPACT record decoding (nullability, fixed/variable length,
// type-specific decode parameters).
type Column struct {
	Name       string
	Ordinal    int
	FieldType  string // SDI column_type_utf8 string, e.g. "varchar", "int"
	IsNullable bool
	IsUnsigned bool
	CharLength int // declared length in bytes for CHAR/VARCHAR/BINARY/VARBINARY
	Precision  int
	Scale      int
	Collation  string
	IsVirtual  bool
	HiddenType string // "HT_VISIBLE", "HT_HIDDEN_SE" (DB_ROW_ID et al.), ...
	Elements   []string // ENUM/SET element names, in declared (1-based) order
}

// Index describes one index's key-part column ordinals, used to locate
// the clustered index for COMPACT record layout.
type Index struct {
	Name       string
	ID         uint64
	IsClustered bool
	KeyParts   []int // ordinals into Table.Columns, in key order
}

// Table is the SDI-derived schema needed to decode a clustered index's
// leaf records into named, typed columns.
type Table struct {
	SchemaName string
	Name       string
	Columns    []Column
	Indexes    []Index
}

// RecordOffset is one entry of the decoded per-record directory: for one
// logical field, its byte range within the record and whether it is NULL
// or stored externally (off-page).
type RecordOffset struct {
	ColumnOrdinal int
	Start         int
	End           int
	IsNull        bool
	IsExternal    bool
}

// LOBRef is a 20-byte off-page column reference (space id, page no,
// offset within page, column length) as stored inline in a record.
type LOBRef struct {
	SpaceID  uint32
	PageNo   uint32
	Offset   uint32
	Length   uint64
}

// FieldValue is one decoded column value in a row, already converted to
// a Go-native representation suitable for CSV/JSONL encoding.
type FieldValue struct {
	Column string
	Value  any // nil, string, int64, uint64, float64, []byte, time.Time
	IsNull bool
}

// Row is one fully decoded clustered-index record, ready for output.
type Row struct {
	PageNo  uint32
	Heap    uint16
	Fields  []FieldValue
}
