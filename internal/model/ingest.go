package model

// IngestEnvelope carries one raw log line with source metadata.
// It is the transport contract between the syslog receivers and the sink processor.
type IngestEnvelope struct {
	Source string // "tcp", "udp"
	Remote string // peer address
	Line   string
}
