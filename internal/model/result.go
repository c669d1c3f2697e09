package model

// ResultStatus is the per-file outcome reported to the caller of a run.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultSkipped ResultStatus = "SKIPPED"
	ResultFailed  ResultStatus = "FAILED"
)

// TransferResult is the outcome of processing one descriptor.
type TransferResult struct {
	FileID           string
	SourcePath       string
	DestPath         string // empty unless Status is ResultSuccess
	Status           ResultStatus
	ErrorMessage     string // skip reason or failure detail
	BytesTransferred int64
}

func Success(fileID, sourcePath, destPath string, bytes int64) TransferResult {
	return TransferResult{
		FileID:           fileID,
		SourcePath:       sourcePath,
		DestPath:         destPath,
		BytesTransferred: bytes,
		Status:           ResultSuccess,
	}
}

func Skipped(fileID, sourcePath, reason string) TransferResult {
	return TransferResult{
		FileID:       fileID,
		SourcePath:   sourcePath,
		Status:       ResultSkipped,
		ErrorMessage: reason,
	}
}

func Failed(fileID, sourcePath, message string) TransferResult {
	return TransferResult{
		FileID:       fileID,
		SourcePath:   sourcePath,
		Status:       ResultFailed,
		ErrorMessage: message,
	}
}
