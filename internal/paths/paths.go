// Package paths resolves the on-disk layout of an engine installation:
// where its binary lives, where maps and replays are read from and written
// to, and which version is installed. Resolution follows the same
// environment-override-first, platform-default-otherwise order the engine
// itself uses, so the arbiter and the engine always agree on where things
// are.
package paths

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const envBaseDir = "SC2ARENA_BASE_DIR"
const envExecuteInfo = "SC2ARENA_EXECUTE_INFO"
const minSupportedVersion = 55958

func defaultBase() string {
	switch runtime.GOOS {
	case "windows":
		return `C:\Program Files (x86)\StarCraft II`
	case "darwin":
		return "/Applications/StarCraft II"
	default:
		return filepath.Join(os.Getenv("HOME"), "StarCraftII")
	}
}

func executeInfoPath() (string, bool) {
	if v := os.Getenv(envExecuteInfo); v != "" {
		return v, true
	}
	home := os.Getenv("HOME")
	switch runtime.GOOS {
	case "windows":
		appdata := os.Getenv("APPDATA")
		if appdata == "" {
			return "", false
		}
		return filepath.Join(appdata, "StarCraft II", "ExecuteInfo.txt"), true
	case "darwin":
		if home == "" {
			return "", false
		}
		return filepath.Join(home, "Library", "Application Support", "Blizzard", "StarCraft II", "ExecuteInfo.txt"), true
	default:
		return "", false
	}
}

var executeInfoLine = regexp.MustCompile(` = (.*)Versions`)

func readExecuteInfo(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open execute info %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := executeInfoLine.FindStringSubmatch(scanner.Text()); m != nil {
			return strings.TrimSpace(m[1]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrapf(err, "scan execute info %q", path)
	}
	return "", errors.Errorf("execute info %q has no recognizable base path line", path)
}

// BaseDir resolves the engine installation's base directory: an explicit
// env override wins, then the platform's ExecuteInfo.txt (if present and
// parseable), then the platform default.
func BaseDir() string {
	if v := os.Getenv(envBaseDir); v != "" {
		return v
	}
	if p, ok := executeInfoPath(); ok {
		if base, err := readExecuteInfo(p); err == nil {
			return base
		}
	}
	return defaultBase()
}

func binSubdir() string {
	switch runtime.GOOS {
	case "windows":
		return "Support64"
	default:
		return "Support64"
	}
}

func executableName() string {
	if runtime.GOOS == "windows" {
		return "SC2_x64.exe"
	}
	return "SC2_x64"
}

var versionDirPattern = regexp.MustCompile(`^Base(\d+)$`)

// LatestExecutablePath finds the highest-numbered BaseNNNNN directory under
// versionsDir and returns the path to the engine executable inside it. It
// errors if no version directory meets the minimum supported build.
func LatestExecutablePath(versionsDir string) (string, error) {
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		return "", errors.Wrapf(err, "read versions dir %q", versionsDir)
	}

	maxVersion := -1
	var maxName string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := versionDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if v > maxVersion {
			maxVersion = v
			maxName = e.Name()
		}
	}
	if maxVersion < minSupportedVersion {
		return "", errors.Errorf("no installed engine version >= %d found under %q", minSupportedVersion, versionsDir)
	}
	return filepath.Join(versionsDir, maxName, binSubdir(), executableName()), nil
}

var executablePathOnce = sync.OnceValues(func() (string, error) {
	base := BaseDir()
	return LatestExecutablePath(filepath.Join(base, "Versions"))
})

// ExecutablePath returns the resolved engine binary path, computed once per
// process and cached for every subsequent call.
func ExecutablePath() (string, error) {
	return executablePathOnce()
}

// CwdDir returns the directory the engine process should be launched with
// as its working directory.
func CwdDir() string {
	return filepath.Join(BaseDir(), "Support64")
}

// ReplayDir returns the directory the engine writes replays into.
func ReplayDir() string {
	return filepath.Join(BaseDir(), "Replays")
}

// MapDir returns the root directory the engine reads maps from.
func MapDir() string {
	return filepath.Join(BaseDir(), "Maps")
}

// FindMap resolves a map name to a path relative to MapDir, walking one
// level of subdirectories and matching case-insensitively. name may omit
// the .SC2Map extension.
func FindMap(name string) (string, error) {
	name = strings.ReplaceAll(name, " ", "")
	if !strings.HasSuffix(strings.ToLower(name), ".sc2map") {
		name += ".SC2Map"
	}
	target := strings.ToLower(name)

	root := MapDir()
	var found string
	matchIn := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			if strings.ToLower(e.Name()) == target {
				rel, err := filepath.Rel(root, filepath.Join(dir, e.Name()))
				if err == nil {
					found = rel
				}
				return nil
			}
		}
		return nil
	}

	if err := matchIn(root); err != nil {
		return "", err
	}
	if found == "" {
		entries, err := os.ReadDir(root)
		if err != nil {
			return "", errors.Wrapf(err, "read map dir %q", root)
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := matchIn(filepath.Join(root, e.Name())); err != nil {
					return "", err
				}
				if found != "" {
					break
				}
			}
		}
	}
	if found == "" {
		return "", errors.Errorf("map %q not found under %q", name, root)
	}
	return found, nil
}
