package constants

const (
	// SourceDBColumn is injected into every record to identify the source database it was read from.
	SourceDBColumn = "source_db"
	// StableKeyColumn is injected into records when the resource's identity policy is [HashedKey].
	StableKeyColumn = "dwh_pk"

	DefaultDestinationPath = "data/warehouse.duckdb"
	DefaultDataset         = "bronze"
	DefaultSilverSchema    = "silver"
	DefaultSilverDir       = "sql/silver"
	DefaultGoldSchema      = "gold"
	DefaultGoldDir         = "sql/gold"

	// CheckpointTable lives in the destination dataset and is written in the same transaction as the load.
	CheckpointTable = "_bronze_checkpoints"
	// StagingTablePrefix is the prefix for per-resource staging tables created during the load phase.
	StagingTablePrefix = "_bronze_staging_"
)

// ExporterKind is used for the Telemetry package
type ExporterKind string

const (
	Datadog ExporterKind = "datadog"
)

type WriteMode string

const (
	Replace WriteMode = "replace"
	Append  WriteMode = "append"
)

func (w WriteMode) IsValid() bool {
	return w == Replace || w == Append
}

type RowIdentityPolicy string

const (
	NoIdentity RowIdentityPolicy = "none"
	HashedKey  RowIdentityPolicy = "hashed_key"
)

func (r RowIdentityPolicy) IsValid() bool {
	return r == NoIdentity || r == HashedKey
}

// CheckpointMirrorKind selects where committed checkpoints are copied to after the destination commit.
type CheckpointMirrorKind string

const (
	NoMirror    CheckpointMirrorKind = "none"
	RedisMirror CheckpointMirrorKind = "redis"
)

func (c CheckpointMirrorKind) IsValid() bool {
	return c == "" || c == NoMirror || c == RedisMirror
}
