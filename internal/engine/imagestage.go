package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"
)

// stagedFile pairs one image name with the source path it is copied from
// and the destination path it is copied to.
type stagedFile struct {
	name string
	src  string
	dst  string
}

// stageImages copies the kernel, initrd, and root filesystem from the
// Engine's image base directory into a VM's working directory. The three
// copies run concurrently, and sem caps the total number of in-flight copy
// syscalls across overlapping launches.
func stageImages(ctx context.Context, sem *semaphore.Weighted, imageBaseDir, workingDir string) error {
	files := []stagedFile{
		{name: "some_kernel_image", src: filepath.Join(imageBaseDir, "some_kernel_image"), dst: filepath.Join(workingDir, "some_kernel_image")},
		{name: "some_initrd", src: filepath.Join(imageBaseDir, "some_initrd"), dst: filepath.Join(workingDir, "some_initrd")},
		{name: "some_root_fs", src: filepath.Join(imageBaseDir, "some_root_fs"), dst: filepath.Join(workingDir, "some_root_fs")},
	}

	errCh := make(chan error, len(files))
	for _, f := range files {
		f := f
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("engine: acquire image copy slot for %s: %w", f.name, err)
		}
		go func() {
			defer sem.Release(1)
			errCh <- copyFile(f.src, f.dst)
		}()
	}

	for range files {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("engine: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("engine: create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("engine: copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
