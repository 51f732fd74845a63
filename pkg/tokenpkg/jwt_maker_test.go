package tokenpkg

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-petr/pet-ledger/pkg/randompkg"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestJWTMaker(t *testing.T) Maker {
	t.Helper()

	maker, err := NewJWTMaker(randompkg.String(minSecretKeySize))
	if err != nil {
		t.Fatalf("NewJWTMaker() returned error: %v", err)
	}

	return maker
}

func TestNewJWTMakerKeySize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "MinSize", key: strings.Repeat("x", minSecretKeySize)},
		{name: "TooShort", key: strings.Repeat("x", minSecretKeySize-1), wantErr: true},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			maker, err := NewJWTMaker(tc.key)
			if tc.wantErr {
				if err == nil || maker != nil {
					t.Errorf("NewJWTMaker(%d chars) = (%v, %v), want an error", len(tc.key), maker, err)
				}

				return
			}

			if err != nil {
				t.Errorf("NewJWTMaker(%d chars) returned error: %v", len(tc.key), err)
			}
		})
	}
}

func TestJWTMakerCarriesRole(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		role      string
		wantAdmin bool
	}{
		{name: "User", role: RoleUser},
		{name: "Admin", role: RoleAdmin, wantAdmin: true},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			maker := newTestJWTMaker(t)
			username := randompkg.Owner()

			token, issued, err := maker.CreateToken(username, tc.role, time.Minute)
			if err != nil {
				t.Fatalf("maker.CreateToken(%v, %v) returned error: %v", username, tc.role, err)
			}

			verified, err := maker.VerifyToken(token)
			if err != nil {
				t.Fatalf("maker.VerifyToken() returned error: %v", err)
			}

			if verified.Role != tc.role {
				t.Errorf("verified.Role = %q, want %q", verified.Role, tc.role)
			}

			if verified.IsAdmin() != tc.wantAdmin {
				t.Errorf("verified.IsAdmin() = %v, want %v", verified.IsAdmin(), tc.wantAdmin)
			}

			delta := cmpopts.EquateApproxTime(time.Second)
			if diff := cmp.Diff(issued, verified, delta); diff != "" {
				t.Errorf("verified payload differs from issued (-issued +verified):\n%s", diff)
			}
		})
	}
}

func TestJWTMakerRejects(t *testing.T) {
	t.Parallel()

	maker := newTestJWTMaker(t)

	testCases := []struct {
		name      string
		makeToken func(t *testing.T) string
		wantErr   error
	}{
		{
			name: "Expired",
			makeToken: func(t *testing.T) string {
				token, _, err := maker.CreateToken(randompkg.Owner(), RoleAdmin, -time.Minute)
				if err != nil {
					t.Fatalf("maker.CreateToken() returned error: %v", err)
				}

				return token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "SignedByAnotherKey",
			makeToken: func(t *testing.T) string {
				token, _, err := newTestJWTMaker(t).CreateToken(randompkg.Owner(), RoleAdmin, time.Minute)
				if err != nil {
					t.Fatalf("maker.CreateToken() returned error: %v", err)
				}

				return token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "UnsignedAdminClaim",
			makeToken: func(t *testing.T) string {
				payload, err := NewPayload(randompkg.Owner(), RoleAdmin, time.Minute)
				if err != nil {
					t.Fatalf("NewPayload() returned error: %v", err)
				}

				token, err := jwt.NewWithClaims(jwt.SigningMethodNone, payload).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				if err != nil {
					t.Fatalf("SignedString() returned error: %v", err)
				}

				return token
			},
			wantErr: ErrInvalidToken,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			payload, err := maker.VerifyToken(tc.makeToken(t))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("maker.VerifyToken() error = %v, want %v", err, tc.wantErr)
			}

			if payload != nil {
				t.Errorf("maker.VerifyToken() payload = %+v, want nil", payload)
			}
		})
	}
}
