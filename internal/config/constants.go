package config

// envPrefix is prepended to every variable name, e.g. PIPELINE_DB_DSN.
const envPrefix = "PIPELINE"

// Publisher backends.
const (
	PublisherNone = ""
	PublisherHTTP = "http"
	PublisherS3   = "s3"
)
