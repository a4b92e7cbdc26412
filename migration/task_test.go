package migration

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/undermoon-go/undermoon/cluster"
	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/slot"
)

// mockPeer scripts a per-sub-command reply sequence: notReadyBudget[sub]
// NOT_READY_FOR_SWITCHING replies followed by a success, except for a sub in
// blockSubs which replies NOT_READY_FOR_SWITCHING forever (used to hold a
// phase open for a cancellation test).
type mockPeer struct {
	mu            sync.Mutex
	calls         map[SubCmd]int
	notReadyBudget map[SubCmd]int
	blockSubs     map[SubCmd]bool
}

func newMockPeer(budget map[SubCmd]int, block map[SubCmd]bool) *mockPeer {
	return &mockPeer{
		calls:          map[SubCmd]int{},
		notReadyBudget: budget,
		blockSubs:      block,
	}
}

func (p *mockPeer) SendUMCTL(ctx context.Context, addr string, sub SubCmd, arg SwitchArg) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[sub]++
	if p.blockSubs[sub] {
		return false, NotReadyReply, nil
	}
	if p.calls[sub] <= p.notReadyBudget[sub] {
		return false, NotReadyReply, nil
	}
	return true, "", nil
}

func (p *mockPeer) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

type mockRouter struct{}

func (mockRouter) Redirect(cmd interface{}, addr string) error { return nil }
func (mockRouter) Forward(cmd interface{}) error                { return nil }

// emptyCursor exhausts immediately: the scan phase never produces any keys.
type emptyCursor struct{}

func (emptyCursor) Scan(ctx context.Context, cursor uint64, count int) (uint64, []string, error) {
	return 0, nil, nil
}
func (emptyCursor) Fetch(ctx context.Context, key string) (Record, error) { return Record{}, nil }

type noopDestination struct{}

func (noopDestination) Restore(ctx context.Context, rec Record) error { return nil }

func newTestTask(peer PeerClient) *MigratingTask {
	cfg, _ := cmn.LoadConfig("")
	meta := TaskMeta{
		Cluster:       "c1",
		SrcProxy:      "p1:6379",
		SrcNode:       "n1a",
		DstProxy:      "p2:6379",
		DstNode:       "n2a",
		Epoch:         1,
		SlotRangeFrom: 0,
		SlotRangeTo:   8191,
	}
	r := cluster.MigrationTaskMeta{
		DB: meta.Cluster,
		SlotRange: slot.Range{
			Start: 0, End: 8191, Tag: slot.Migrating,
			Meta: &slot.MigrationMeta{
				Epoch:    meta.Epoch,
				SrcProxy: meta.SrcProxy,
				SrcNode:  meta.SrcNode,
				DstProxy: meta.DstProxy,
				DstNode:  meta.DstNode,
			},
		},
	}
	return NewMigratingTask(meta, peer, mockRouter{}, emptyCursor{}, noopDestination{}, r, cfg)
}

var _ = Describe("MigratingTask", func() {
	It("progresses through all five phases with exactly 12 peer probes", func() {
		peer := newMockPeer(map[SubCmd]int{
			SubCmdPreCheck:    3,
			SubCmdPreSwitch:   3,
			SubCmdFinalSwitch: 3,
		}, nil)
		task := newTestTask(peer)

		By("running the task to completion")
		err := task.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())

		By("reaching SwitchCommitted")
		Expect(task.State()).To(Equal(SwitchCommitted))

		By("probing each of the three UMCTL phases exactly 4 times (3 retries + 1 success)")
		Expect(peer.total()).To(Equal(12))
	})

	It("rejects a second Start as AlreadyStarted", func() {
		peer := newMockPeer(nil, nil)
		task := newTestTask(peer)
		Expect(task.Start(context.Background())).To(Succeed())
		err := task.Start(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(cmn.Is(err, cmn.KindAlreadyStarted)).To(BeTrue())
	})

	It("collapses the running task on Stop and rejects a second Stop as AlreadyEnded", func() {
		peer := newMockPeer(nil, map[SubCmd]bool{SubCmdPreSwitch: true})
		task := newTestTask(peer)

		done := make(chan error, 1)
		go func() { done <- task.Start(context.Background()) }()

		By("waiting for the task to be stuck probing PreSwitch")
		Eventually(func() State { return task.State() }).Should(Equal(PreSwitch))

		By("requesting cancellation")
		Expect(task.Stop()).To(Succeed())

		var runErr error
		Eventually(done, time.Second).Should(Receive(&runErr))
		Expect(runErr).To(HaveOccurred())
		Expect(cmn.Is(runErr, cmn.KindCanceled)).To(BeTrue())

		By("a second Stop reports AlreadyEnded")
		err := task.Stop()
		Expect(cmn.Is(err, cmn.KindAlreadyEnded)).To(BeTrue())
	})
})
