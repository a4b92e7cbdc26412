package cluster

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/slot"
)

func mustAddTwoProxies(s *Store, p1, p1a, p1b, p2, p2a, p2b Addr) {
	Expect(s.AddProxy(p1, []Addr{p1a, p1b})).To(Succeed())
	Expect(s.AddProxy(p2, []Addr{p2a, p2b})).To(Succeed())
}

var _ = Describe("Store", func() {
	var s *Store

	BeforeEach(func() {
		s = New(NewDetector())
	})

	Describe("create-and-migrate-half (§8 scenario 1)", func() {
		It("splits the source master's range and pairs a matching Importing range at the destination", func() {
			mustAddTwoProxies(s, "p1", "n1a", "n1b", "p2", "n2a", "n2b")
			Expect(s.AddCluster("c1")).To(Succeed())

			_, err := s.AutoAddNodes("c1")
			Expect(err).NotTo(HaveOccurred())
			_, err = s.AutoAddNodes("c1")
			Expect(err).NotTo(HaveOccurred())

			before, _ := s.ClusterMeta("c1")
			n1aBefore, ok := before.NodeAddr("n1a")
			Expect(ok).To(BeTrue())
			Expect(n1aBefore.Slots).To(HaveLen(1))
			priorRange := n1aBefore.Slots[0]

			meta, err := s.MigrateSlots("c1", "n1a", "n2a", KindHalf)
			Expect(err).NotTo(HaveOccurred())

			after, _ := s.ClusterMeta("c1")
			n1a, _ := after.NodeAddr("n1a")
			n2a, _ := after.NodeAddr("n2a")

			By("n1a retains a Normal range plus a Migrating range covering its prior range")
			var normal, migrating slot.Range
			var normalFound, migratingFound bool
			for _, r := range n1a.Slots {
				switch r.Tag {
				case slot.Normal:
					normal, normalFound = r, true
				case slot.Migrating:
					migrating, migratingFound = r, true
				}
			}
			Expect(normalFound).To(BeTrue())
			Expect(migratingFound).To(BeTrue())
			Expect(normal.Start).To(Equal(priorRange.Start))
			Expect(migrating.End).To(Equal(priorRange.End))
			Expect(normal.End + 1).To(Equal(migrating.Start))

			By("n2a has a matching Importing range")
			iIdx, iRange, ok := findTaggedRange(n2a.Slots, slot.Importing, "n2a")
			_ = iIdx
			Expect(ok).To(BeTrue())
			Expect(iRange.Start).To(Equal(migrating.Start))
			Expect(iRange.End).To(Equal(migrating.End))
			Expect(iRange.Meta.Epoch).To(Equal(meta.Epoch))

			By("the migration epoch exceeds every epoch stamped before it")
			Expect(meta.Epoch).To(BeNumerically(">", before.Epoch))
		})
	})

	Describe("commit retires migration (§8 scenario 2)", func() {
		It("removes the Migrating range and flips the paired Importing range to Normal", func() {
			mustAddTwoProxies(s, "p1", "n1a", "n1b", "p2", "n2a", "n2b")
			Expect(s.AddCluster("c1")).To(Succeed())
			s.AutoAddNodes("c1")
			s.AutoAddNodes("c1")
			meta, err := s.MigrateSlots("c1", "n1a", "n2a", KindHalf)
			Expect(err).NotTo(HaveOccurred())

			before, _ := s.ClusterMeta("c1")
			var totalBefore int
			for _, n := range before.Nodes {
				for _, r := range n.Slots {
					if r.Tag == slot.Normal || r.Tag == slot.Migrating {
						totalBefore += int(r.End) - int(r.Start) + 1
					}
				}
			}

			taskMeta := MigrationTaskMeta{DB: "c1", SlotRange: slot.Range{Meta: &slot.MigrationMeta{Epoch: meta.Epoch}}}
			Expect(s.CommitMigration(taskMeta)).To(Succeed())

			after, _ := s.ClusterMeta("c1")
			n1a, _ := after.NodeAddr("n1a")
			n2a, _ := after.NodeAddr("n2a")

			for _, r := range n1a.Slots {
				Expect(r.Tag).NotTo(Equal(slot.Migrating))
			}
			for _, r := range n2a.Slots {
				Expect(r.Tag).NotTo(Equal(slot.Importing))
			}

			var totalAfter int
			for _, n := range after.Nodes {
				for _, r := range n.Slots {
					if r.Tag == slot.Normal {
						totalAfter += int(r.End) - int(r.Start) + 1
					}
				}
			}
			Expect(totalAfter).To(Equal(totalBefore))
			Expect(s.Validate()).To(Succeed())
		})
	})

	Describe("stale commit rejected (§8 scenario 3)", func() {
		It("rejects a commit carrying a pre-mutation epoch with NotFound", func() {
			mustAddTwoProxies(s, "p1", "n1a", "n1b", "p2", "n2a", "n2b")
			Expect(s.AddCluster("c1")).To(Succeed())
			s.AutoAddNodes("c1")
			s.AutoAddNodes("c1")
			meta, err := s.MigrateSlots("c1", "n1a", "n2a", KindHalf)
			Expect(err).NotTo(HaveOccurred())
			staleEpoch := meta.Epoch

			Expect(s.AddProxy("p3", []Addr{"n3a", "n3b"})).To(Succeed())

			taskMeta := MigrationTaskMeta{DB: "c1", SlotRange: slot.Range{Meta: &slot.MigrationMeta{Epoch: staleEpoch - 1}}}
			err = s.CommitMigration(taskMeta)
			Expect(err).To(HaveOccurred())
			Expect(cmn.Is(err, cmn.KindNotFound)).To(BeTrue())
		})
	})

	Describe("replace failed proxy (§8 scenario 4)", func() {
		It("relocates the failed proxy's nodes and clears its failure reports", func() {
			Expect(s.AddProxy("p1", []Addr{"n1a", "n1b"})).To(Succeed())
			Expect(s.AddProxy("p2", []Addr{"n2a", "n2b"})).To(Succeed())
			Expect(s.AddProxy("p3", []Addr{"n3a", "n3b"})).To(Succeed())
			Expect(s.AddCluster("c1")).To(Succeed())
			_, err := s.AutoAddNodes("c1")
			Expect(err).NotTo(HaveOccurred())

			s.detector.AddFailure("p1", "p2")
			s.detector.AddFailure("p1", "p3")
			Expect(s.detector.GetFailures(time.Minute)).To(ContainElement(Addr("p1")))

			replacement, err := s.ReplaceFailedProxy("p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(replacement.Addr).To(Equal("p2"))

			after, _ := s.ClusterMeta("c1")
			_, hasOld := after.NodeAddr("n1a")
			Expect(hasOld).To(BeFalse())

			_, ok := s.ProxyMeta("p1")
			Expect(ok).To(BeFalse())

			Expect(s.detector.GetFailures(time.Minute)).NotTo(ContainElement(Addr("p1")))
			Expect(s.Validate()).To(Succeed())
		})
	})

	Describe("invariants", func() {
		It("hold after a sequence of valid mutations", func() {
			mustAddTwoProxies(s, "p1", "n1a", "n1b", "p2", "n2a", "n2b")
			Expect(s.AddProxy("p3", []Addr{"n3a", "n3b"})).To(Succeed())
			Expect(s.AddCluster("c1")).To(Succeed())
			s.AutoAddNodes("c1")
			s.AutoAddNodes("c1")
			Expect(s.AssignReplica("c1", "n2a", "n1b")).To(Succeed())
			_, err := s.MigrateSlots("c1", "n1a", "n2a", KindHalf)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Validate()).To(Succeed())
		})
	})
})
