package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sc2arena/matcharbiter/internal/protocol"
)

// buildInfoFile is the engine's version manifest, read once per process.
const buildInfoFile = ".build.info"

// NewBuildInfoReader returns a memoized reader of baseDir's version
// manifest (pipe-delimited: version|base_build|data_build): the file is
// read at most once for the lifetime of the returned closure, matching the
// "global, read-only state" treatment paths.ExecutablePath gives the
// installed engine path.
func NewBuildInfoReader(baseDir string) func() (protocol.BuildInfo, error) {
	return sync.OnceValues(func() (protocol.BuildInfo, error) {
		return parseBuildInfo(filepath.Join(baseDir, buildInfoFile))
	})
}

func parseBuildInfo(path string) (protocol.BuildInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return protocol.BuildInfo{}, errors.Wrapf(err, "open build info %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return protocol.BuildInfo{}, errors.Errorf("build info %q is empty", path)
	}
	fields := strings.Split(scanner.Text(), "|")
	info := protocol.BuildInfo{}
	if len(fields) > 0 {
		info.Version = strings.TrimSpace(fields[0])
	}
	if len(fields) > 1 {
		if v, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32); err == nil {
			info.BaseBuild = uint32(v)
		}
	}
	if len(fields) > 2 {
		if v, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32); err == nil {
			info.DataBuild = uint32(v)
		}
	}
	info.DataVersion = ""
	return info, nil
}
