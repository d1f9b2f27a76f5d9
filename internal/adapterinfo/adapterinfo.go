package adapterinfo

// Metadata captures static identifiers for the adapter.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current adapter.
var Info = Metadata{
	Name:        "Nupi Whisper Host",
	BinaryName:  "whisper-host",
	Slug:        "stt-whisper-host",
	Description: "Whisper inference host with a bounded context pool and streamed results.",
	GeneratorID: "stt-whisper-host",
	Version:     "0.1.0",
}

// Version returns the adapter version.
func Version() string { return Info.Version }

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcription events.
func TranscriptMetadata(jobID, language, mode string) map[string]string {
	return map[string]string{
		"generator": Info.GeneratorID,
		"job_id":    jobID,
		"language":  language,
		"mode":      mode,
	}
}
