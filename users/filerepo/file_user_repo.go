package filerepo

import (
	"bytes"
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/users"
)

var _ users.Repo = (*FileUserRepo)(nil)

// FileUserRepo is a read-only user store loaded from a YAML document of the
// form:
//
//	users:
//	  - id: user-1
//	    username: ada
//	    role: admin
//	    is_active: true
type FileUserRepo struct {
	users map[string]users.User
}

type userFile struct {
	Users []users.User `yaml:"users"`
}

// Load reads a users file from disk.
func Load(path string) (*FileUserRepo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[filerepo.Load] reading %s", path)
	}
	repo, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "[filerepo.Load] %s", path)
	}
	return repo, nil
}

// Parse decodes a users document. Ids must be present and unique.
func Parse(data []byte) (*FileUserRepo, error) {
	var doc userFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}

	repo := &FileUserRepo{users: make(map[string]users.User, len(doc.Users))}
	for i, u := range doc.Users {
		if u.ID == "" {
			return nil, errors.Errorf("user %d has no id", i)
		}
		if _, dup := repo.users[u.ID]; dup {
			return nil, errors.Errorf("duplicate user id %q", u.ID)
		}
		if u.Role == "" {
			u.Role = users.RoleUser
		}
		repo.users[u.ID] = u
	}
	return repo, nil
}

func (r *FileUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, oautherrors.ErrUserNotFound
	}
	return &u, nil
}

func (r *FileUserRepo) Len() int {
	return len(r.users)
}
