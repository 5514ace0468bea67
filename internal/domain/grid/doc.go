/*
Package grid arranges terminal sessions into split layouts.

The grid stores session ids only; the sessions belong to a terminal.Manager.
The layout is derived from the count on every call:

	0     empty
	1     single
	2     horizontal split
	3-4   quad split
	5+    wrapped grid, two panes per row

Example:

	g := grid.New(terminals, logger)
	sessionID, err := g.Add(ctx, terminal.Options{})
	layout := g.Layout()
	done, _ := g.Remove(sessionID)
	<-done
*/
package grid
