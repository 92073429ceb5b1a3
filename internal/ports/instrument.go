package ports

// Instrument is the narrow command capability a digitizing oscilloscope
// exposes. Command strings are instrument specific and come from config.
type Instrument interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	// QueryBinary returns the payload of a definite-length binary block.
	QueryBinary(cmd string) ([]byte, error)
	Close() error
}

// Dialer opens an Instrument for a resource string such as
// "tcp://10.0.0.5:4000" or "serial:///dev/ttyUSB0?baud=9600".
type Dialer func(resource string) (Instrument, error)
