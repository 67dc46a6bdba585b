package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional relays bytes between left and right until either
// direction ends or ctx is canceled, then closes both. The close that ends
// the other direction is not reported as an error.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(cctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	copyHalf := func(dst, src net.Conn) func() error {
		return func() error {
			_, err := io.Copy(dst, src)
			cancel()
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
	g.Go(copyHalf(left, right))
	g.Go(copyHalf(right, left))

	// Closing both sides unblocks whichever Copy is still running.
	g.Go(func() error {
		<-gctx.Done()
		closeBoth()
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
