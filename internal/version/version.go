package version

// Metadatos de build, inyectados en tiempo de enlazado:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.3 ..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info es la forma JSON que sirve la superficie de introspección.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
}
