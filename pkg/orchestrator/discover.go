package orchestrator

import (
	"os"

	"github.com/karrick/godirwalk"

	"github.com/legeapp/openarc/pkg/common"
)

// CollectFiles expands inputPaths (files or directories) into a flat list
// of file paths, walking directories with godirwalk for its lower
// allocation overhead versus filepath.Walk on large trees.
func CollectFiles(inputPaths []string) ([]string, error) {
	var files []string
	for _, p := range inputPaths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = godirwalk.Walk(p, &godirwalk.Options{
			Unsorted: true,
			Callback: func(path string, de *godirwalk.Dirent) error {
				isDir, err := de.IsDirOrSymlinkToDir()
				if err != nil {
					return nil
				}
				if !isDir {
					files = append(files, path)
				}
				return nil
			},
		})
		if err != nil {
			return nil, common.Wrap(common.KindDiscoveryFailed, p, err)
		}
	}
	return files, nil
}
