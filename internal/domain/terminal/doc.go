// Package terminal manages interactive shell sessions running inside
// pseudo-terminals.
//
// Each Session owns one PTY master, the shell attached to its slave side, a
// single reader goroutine and a bounded line buffer. The reader is the only
// writer to the buffer; callers read it through copying snapshots.
//
// Lifecycle:
//
//	Created --(allocate + spawn ok)--> Running --(EOF | read error)--> Closed
//	Created --(allocate or spawn fails)--> Failed
//
// A failed Open never returns a session. Close is signal-and-forget: it
// kills the shell, closes the master and returns the channel that is closed
// once the reader has finished and the shell has been reaped.
//
// Example Usage:
//
//	mgr := terminal.NewManager(terminal.Options{Shell: "sh"}, logger)
//	sess, err := mgr.Open(terminal.Options{})
//	if err != nil {
//		return err
//	}
//	_ = sess.SendInput([]byte("ls -la\n"))
//	lines := sess.Snapshot(100)
//	<-mgr.Close(sess.ID())
package terminal
