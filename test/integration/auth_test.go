// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/doorman/internal/auth"
	"github.com/holomush/doorman/internal/kv"
	kvpostgres "github.com/holomush/doorman/internal/kv/postgres"
	kvredis "github.com/holomush/doorman/internal/kv/redis"
)

// capturedReset keeps the last delivered reset token.
type capturedReset struct {
	token string
}

func (c *capturedReset) DeliverReset(_ context.Context, _, token string) error {
	c.token = token
	return nil
}

var _ = Describe("Sessions over PostgreSQL and Redis", func() {
	var (
		durable   kv.Store
		ephemeral kv.Store
		tiers     auth.Tiers
		hasher    auth.PasswordHasher
	)

	newManager := func(opts ...auth.SessionManagerOption) *auth.SessionManager {
		dir, err := auth.NewDirectory(durable, auth.WithHasher(hasher))
		Expect(err).NotTo(HaveOccurred())
		mgr, err := auth.NewSessionManager(dir, tiers, opts...)
		Expect(err).NotTo(HaveOccurred())
		return mgr
	}

	BeforeEach(func() {
		cleanStorage()
		durable = kvpostgres.NewStore(env.pool)
		ephemeral = kvredis.NewStore(env.redis, time.Hour)
		tiers = auth.Tiers{
			Durable:   kv.Scope(durable, "ctx:browser:"),
			Ephemeral: kv.Scope(ephemeral, "tab:browser:"),
		}
		hasher = auth.NewArgon2idHasherWithParams(1, 8, 1)
	})

	It("keeps a remembered session across directory reloads", func() {
		_, err := newManager().Login(env.ctx, auth.DemoFreeEmail, auth.DemoPassword, true)
		Expect(err).NotTo(HaveOccurred())

		sess, tier, err := newManager().CurrentSession(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(tier).To(Equal(auth.TierDurable))
		Expect(sess.Email).To(Equal(auth.DemoFreeEmail))
	})

	It("stores tab sessions in Redis only", func() {
		_, err := newManager().Login(env.ctx, auth.DemoProEmail, auth.DemoPassword, false)
		Expect(err).NotTo(HaveOccurred())

		_, ok, err := tiers.Durable.Get(env.ctx, auth.CurrentUserKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		keys, err := env.redis.Keys(env.ctx, "tab:browser:*").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(ConsistOf("tab:browser:" + auth.CurrentUserKey))
	})

	It("persists signups and password resets", func() {
		delivery := &capturedReset{}
		ledger := auth.NewResetLedger(durable, time.Hour)
		mgr := newManager(auth.WithResetLedger(ledger, delivery))

		_, err := mgr.Signup(env.ctx, auth.SignupRequest{
			FullName:        "Grace Hopper",
			Email:           "grace@example.com",
			Password:        "cobol59",
			ConfirmPassword: "cobol59",
			AcceptedTerms:   true,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(mgr.ForgotPassword(env.ctx, "grace@example.com")).To(Succeed())
		Expect(delivery.token).NotTo(BeEmpty())
		Expect(mgr.ResetPassword(env.ctx, delivery.token, "flowmatic", "flowmatic")).To(Succeed())

		fresh := newManager()
		_, err = fresh.Login(env.ctx, "grace@example.com", "cobol59", false)
		Expect(err).To(MatchError(auth.ErrInvalidCredentials))
		_, err = fresh.Login(env.ctx, "grace@example.com", "flowmatic", false)
		Expect(err).NotTo(HaveOccurred())
	})

	It("logs out of both tiers", func() {
		mgr := newManager()
		_, err := mgr.Login(env.ctx, auth.DemoFreeEmail, auth.DemoPassword, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.Logout(env.ctx)).To(Succeed())

		state, err := mgr.State(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(auth.StateAnonymous))
	})
})
