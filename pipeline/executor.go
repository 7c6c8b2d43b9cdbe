package pipeline

import (
	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/resample"
)

// execute runs the CPU plan: rows of tiles are handed to the worker pool, each
// tile is walked row by row in blocks of plan.Lanes() pixels, and every block is
// gathered from the coordinate map then sampled by the kernel.
func (p *Pipeline[T]) execute(input, output *images.Buffer[T]) {
	plan := p.plan
	w, h := p.output.Width, p.output.Height
	ch := p.output.Channels
	lanes := plan.Lanes()
	cols := plan.TileCols(w)

	p.pool.ParallelForAtomic(plan.TileRows(h), func(ty int) {
		l := p.lanes.Get().(*resample.Lanes)
		defer p.lanes.Put(l)

		for tx := 0; tx < cols; tx++ {
			t := plan.Tile(tx, ty, w, h)
			for y := t.Y0; y < t.Y1; y++ {
				row := output.Row(y)
				for x := t.X0; x < t.X1; x += lanes {
					n := min(lanes, t.X1-x)
					p.gather(l, x, y, n)
					p.kernel.Block(input, row[x*ch:(x+n)*ch], l, n)
				}
			}
		}
	})
}

// gather loads the coordinates of output pixels [x, x+n) on row y into l.
func (p *Pipeline[T]) gather(l *resample.Lanes, x, y, n int) {
	if p.coords != nil {
		p.coords.Row(y, x, l.SrcX[:n], l.SrcY[:n], l.OOB[:n])
		return
	}
	for i := 0; i < n; i++ {
		l.SrcX[i], l.SrcY[i], l.OOB[i] = p.mapper.Map(x+i, y)
	}
}
