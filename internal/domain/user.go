package domain

// AccountType is the identity provider's account classification.
type AccountType string

const (
	AccountGuest      AccountType = "guest"
	AccountIndividual AccountType = "individual"
	AccountBusiness   AccountType = "business"
)

// RoleMerchant grants back-office access to quotes.
const RoleMerchant = "admin"

// UserContext is the normalized caller identity, resolved once at the HTTP boundary.
type UserContext struct {
	UserID              string      `json:"userId,omitempty"`
	AccountType         AccountType `json:"accountType"`
	Verified            bool        `json:"verified"`
	IndividualProfileID string      `json:"individualProfileId,omitempty"`
	BusinessProfileID   string      `json:"businessProfileId,omitempty"`
	Role                string      `json:"role,omitempty"`
}

func Guest() UserContext {
	return UserContext{AccountType: AccountGuest}
}

func (u UserContext) IsGuest() bool {
	return u.UserID == ""
}

func (u UserContext) IsMerchant() bool {
	return !u.IsGuest() && u.Role == RoleMerchant
}

func (u UserContext) IsVerifiedBusiness() bool {
	return u.AccountType == AccountBusiness && u.Verified
}

// DefaultProfile picks the profile a cart is opened for when the caller does not name one.
func (u UserContext) DefaultProfile() ProfileType {
	if u.AccountType == AccountBusiness && u.BusinessProfileID != "" {
		return ProfileBusiness
	}
	if u.IndividualProfileID == "" && u.BusinessProfileID != "" {
		return ProfileBusiness
	}
	return ProfileIndividual
}

// Profile resolves the caller's profile reference of the given type.
func (u UserContext) Profile(kind ProfileType) (ProfileRef, error) {
	if u.IsGuest() {
		return ProfileRef{}, Validation("sign in required")
	}
	if kind == "" {
		kind = u.DefaultProfile()
	}
	switch kind {
	case ProfileIndividual:
		id := u.IndividualProfileID
		if id == "" {
			// Individuals without an explicit profile shop under their user id.
			if u.BusinessProfileID != "" {
				return ProfileRef{}, Validation("no individual profile on account")
			}
			id = u.UserID
		}
		return ProfileRef{Type: ProfileIndividual, ID: id}, nil
	case ProfileBusiness:
		if u.BusinessProfileID == "" {
			return ProfileRef{}, Validation("no business profile on account")
		}
		return ProfileRef{Type: ProfileBusiness, ID: u.BusinessProfileID}, nil
	default:
		return ProfileRef{}, Validation("unknown profile type %q", kind)
	}
}
