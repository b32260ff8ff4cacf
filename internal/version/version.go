// Package version хранит сведения о сборке, подставляемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/tableside/internal/version.version=v1.4.0
//	-X github.com/vladislavdragonenkov/tableside/internal/version.commit=$(git rev-parse HEAD)
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const shortCommitLen = 12

// BuildInfo попадает в /healthz и в стартовый лог.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает сведения о текущей сборке.
func Get() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, Date: date}
}

// ShortCommit обрезает хеш до 12 символов.
func (b BuildInfo) ShortCommit() string {
	if len(b.Commit) > shortCommitLen {
		return b.Commit[:shortCommitLen]
	}
	return b.Commit
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("tableside %s (commit %s, built %s)", b.Version, b.ShortCommit(), b.Date)
}
