// Package errors provides structured error handling for Index Foundry.
//
// Every error surfaced to a caller carries a stable code, a recoverable
// flag, optional structured details, and an optional suggestion. Codes are
// stable identifiers shared across implementations and transports.
package errors

// Category classifies errors for logging and propagation policy.
type Category string

const (
	// CategoryInput indicates input validation errors.
	CategoryInput Category = "INPUT"
	// CategoryWorkspace indicates project/run workspace errors.
	CategoryWorkspace Category = "WORKSPACE"
	// CategoryFetch indicates content retrieval errors.
	CategoryFetch Category = "FETCH"
	// CategoryBuild indicates build pipeline errors.
	CategoryBuild Category = "BUILD"
	// CategoryStorage indicates persistence errors.
	CategoryStorage Category = "STORAGE"
	// CategoryServer indicates search server lifecycle errors.
	CategoryServer Category = "SERVER"
)

// Stable error codes.
const (
	// Input validation.
	CodeInvalidInput  = "InvalidInput"
	CodeNotConfirmed  = "NotConfirmed"
	CodeInvalidFilter = "InvalidFilter"

	// Workspace.
	CodeProjectExists   = "ProjectExists"
	CodeProjectNotFound = "ProjectNotFound"
	CodeRunNotFound     = "RunNotFound"
	CodeDuplicateSource = "DuplicateSource"
	CodeNoSource        = "NoSource"

	// Fetch.
	CodeFetchFailed   = "FetchFailed"
	CodeFetchTimeout  = "FetchTimeout"
	CodeDomainBlocked = "DomainBlocked"
	CodeFileTooLarge  = "FileTooLarge"
	CodeParseError    = "ParseError"

	// Build.
	CodeChunkError         = "ChunkError"
	CodeMissingApiKey      = "MissingApiKey"
	CodeEmbedProviderError = "EmbedProviderError"
	CodeDimensionMismatch  = "DimensionMismatch"
	CodeBuildFailed        = "BuildFailed"
	CodeBuildTimeout       = "BuildTimeout"

	// Storage.
	CodeDbError               = "DbError"
	CodeCheckpointWriteFailed = "CheckpointWriteFailed"
	CodeExportFailed          = "ExportFailed"

	// Server.
	CodeAlreadyRunning = "AlreadyRunning"
	CodeNotRunning     = "NotRunning"
	CodeServeFailed    = "ServeFailed"
)

// categoryFromCode maps a code to its category.
func categoryFromCode(code string) Category {
	switch code {
	case CodeInvalidInput, CodeNotConfirmed, CodeInvalidFilter:
		return CategoryInput
	case CodeProjectExists, CodeProjectNotFound, CodeRunNotFound, CodeDuplicateSource, CodeNoSource:
		return CategoryWorkspace
	case CodeFetchFailed, CodeFetchTimeout, CodeDomainBlocked, CodeFileTooLarge, CodeParseError:
		return CategoryFetch
	case CodeChunkError, CodeMissingApiKey, CodeEmbedProviderError, CodeDimensionMismatch, CodeBuildFailed, CodeBuildTimeout:
		return CategoryBuild
	case CodeDbError, CodeCheckpointWriteFailed, CodeExportFailed:
		return CategoryStorage
	case CodeAlreadyRunning, CodeNotRunning, CodeServeFailed:
		return CategoryServer
	default:
		return CategoryBuild
	}
}

// defaultRecoverable returns the recoverable flag implied by a code alone.
// Callers can override per-instance (HTTP 5xx vs 4xx, transport failures)
// with WithRecoverable.
func defaultRecoverable(code string) bool {
	switch code {
	case CodeFetchTimeout, CodeBuildTimeout, CodeEmbedProviderError:
		// Timeouts are always recoverable.
		return true
	default:
		return false
	}
}

// isFatalCode reports whether a code aborts an entire build rather than a
// single source. These are workspace-integrity errors.
func isFatalCode(code string) bool {
	switch code {
	case CodeDimensionMismatch, CodeMissingApiKey, CodeCheckpointWriteFailed:
		return true
	default:
		return false
	}
}
