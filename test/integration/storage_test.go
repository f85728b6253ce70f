// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

//go:build integration

package integration

import (
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	kvpostgres "github.com/holomush/doorman/internal/kv/postgres"
	kvredis "github.com/holomush/doorman/internal/kv/redis"
	"github.com/holomush/doorman/internal/store"
)

var _ = Describe("Storage backends", func() {
	BeforeEach(cleanStorage)

	Describe("PostgreSQL store", func() {
		It("round-trips, overwrites and removes values", func() {
			s := kvpostgres.NewStore(env.pool)

			_, ok, err := s.Get(env.ctx, "users")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(s.Set(env.ctx, "users", "[]")).To(Succeed())
			Expect(s.Set(env.ctx, "users", `[{"id":"1"}]`)).To(Succeed())

			v, ok, err := s.Get(env.ctx, "users")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(`[{"id":"1"}]`))

			Expect(s.Remove(env.ctx, "users")).To(Succeed())
			Expect(s.Remove(env.ctx, "users")).To(Succeed())
			_, ok, err = s.Get(env.ctx, "users")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Migrator", func() {
		It("reports no pending migrations after Up", func() {
			m, err := store.NewPostgresMigrator(env.dbURL)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = m.Close() }()

			pending, err := m.PendingMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			version, dirty, err := m.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			all, err := store.MigrationVersions(store.DialectPostgres)
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(all[len(all)-1]))
		})
	})

	Describe("Redis store", func() {
		It("expires values after the configured TTL", func() {
			s := kvredis.NewStore(env.redis, time.Minute)
			Expect(s.Set(env.ctx, "tab:x:currentUser", "{}")).To(Succeed())

			ttl, err := env.redis.TTL(env.ctx, "tab:x:currentUser").Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(BeNumerically(">", 0))
			Expect(ttl).To(BeNumerically("<=", time.Minute))

			Expect(s.Remove(env.ctx, "tab:x:currentUser")).To(Succeed())
			_, ok, err := s.Get(env.ctx, "tab:x:currentUser")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})
