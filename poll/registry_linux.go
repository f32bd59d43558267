//go:build linux
// +build linux

package poll

import (
	"github.com/google/btree"
	"golang.org/x/sys/unix"
)

type fdItem int

func (a fdItem) Less(b btree.Item) bool {
	return a < b.(fdItem)
}

// category tracks the fds interested in one event bit: the live select()
// bitmask, the ordered member set, and the highest member. The maximum is
// what bounds the cost of the select call, so it is kept current on every
// insert and erase instead of being rescanned.
type category struct {
	fds     unix.FdSet
	members *btree.BTree
	maxFd   int
}

func newCategory() *category {
	c := &category{
		members: btree.New(2),
		maxFd:   invalidFd,
	}
	c.fds.Zero()
	return c
}

func (c *category) add(fd int) {
	c.fds.Set(fd)
	c.members.ReplaceOrInsert(fdItem(fd))
	if fd > c.maxFd {
		c.maxFd = fd
	}
}

func (c *category) clear(fd int) {
	c.fds.Clear(fd)
	c.members.Delete(fdItem(fd))
	if fd == c.maxFd {
		c.maxFd = c.currentMax()
	}
}

func (c *category) has(fd int) bool {
	return c.members.Has(fdItem(fd))
}

func (c *category) currentMax() int {
	if c.members.Len() == 0 {
		return invalidFd
	}
	return int(c.members.Max().(fdItem))
}

// registry is the fd to stored-mask table, plus an ordered index over the
// registered fds that fixes the drain order.
type registry struct {
	table map[int]uint32
	index *btree.BTree
}

func newRegistry() *registry {
	return &registry{
		table: make(map[int]uint32),
		index: btree.New(2),
	}
}

func (r *registry) put(fd int, mask uint32) {
	r.table[fd] = mask
	r.index.ReplaceOrInsert(fdItem(fd))
}

func (r *registry) remove(fd int) {
	delete(r.table, fd)
	r.index.Delete(fdItem(fd))
}

func (r *registry) has(fd int) bool {
	_, ok := r.table[fd]
	return ok
}

func (r *registry) len() int {
	return len(r.table)
}

// ascending returns the registered fds in ascending order.
func (r *registry) ascending() []int {
	out := make([]int, 0, len(r.table))
	r.index.Ascend(func(i btree.Item) bool {
		out = append(out, int(i.(fdItem)))
		return true
	})
	return out
}
