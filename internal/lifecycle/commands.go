package lifecycle

type command string

const (
	cmdOpen  command = "open"
	cmdClose command = "close"
)

// commandQueue holds the ordered commands awaiting the loop together with the
// reasons that requested them. It contains at most one open and one close;
// close precedes open only after a restart.
type commandQueue[R comparable] struct {
	cmds         []command
	openReasons  []R
	closeReasons []R
}

// batch is the set of commands applied by one loop run.
type batch[R comparable] struct {
	cmds         []command
	openReasons  []R
	closeReasons []R
}

// start clears a bare close and queues an open.
func (q *commandQueue[R]) start(reason R) {
	if len(q.cmds) == 1 && q.cmds[0] == cmdClose {
		q.cmds = []command{cmdOpen}
		q.closeReasons = nil
	} else if !q.has(cmdOpen) {
		q.cmds = append(q.cmds, cmdOpen)
	}
	q.openReasons = appendUnique(q.openReasons, reason)
}

// close drops any queued open and queues a close.
func (q *commandQueue[R]) close(reason R) {
	q.cmds = []command{cmdClose}
	q.openReasons = nil
	q.closeReasons = appendUnique(q.closeReasons, reason)
}

func (q *commandQueue[R]) restart(reason R) {
	q.cmds = []command{cmdClose, cmdOpen}
	q.openReasons = appendUnique(q.openReasons, reason)
	q.closeReasons = appendUnique(q.closeReasons, reason)
}

// take empties the queue. Commands queued afterwards belong to the next run.
func (q *commandQueue[R]) take() batch[R] {
	b := batch[R]{cmds: q.cmds, openReasons: q.openReasons, closeReasons: q.closeReasons}
	q.cmds, q.openReasons, q.closeReasons = nil, nil, nil
	return b
}

func (q *commandQueue[R]) has(cmd command) bool {
	for _, c := range q.cmds {
		if c == cmd {
			return true
		}
	}
	return false
}

func appendUnique[R comparable](list []R, v R) []R {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
