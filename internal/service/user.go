package service

import (
	"errors"
	"time"

	"github.com/andr77eeeew/HospitalService/internal/auth"
	"github.com/andr77eeeew/HospitalService/internal/config"
	"github.com/andr77eeeew/HospitalService/internal/models"
	"gorm.io/gorm"
)

// UserService 封装注册、登录、token 旋转和用户目录。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// RegisterInput 是注册需要的全部字段，角色只认 doctor / patient。
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Gender    string `json:"gender"`
	DateBirth string `json:"date_birth"`
}

// UserDTO 是对外输出的用户数据。
type UserDTO struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	Gender    string `json:"gender,omitempty"`
	DateBirth string `json:"date_birth,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

func toUserDTO(u models.User) UserDTO {
	dto := UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Role:      u.Role,
		Gender:    u.Gender,
		Avatar:    u.AvatarURL,
	}
	if u.DateBirth != nil {
		dto.DateBirth = u.DateBirth.Format("2006-01-02")
	}
	return dto
}

// Register 注册新用户。
func (s *UserService) Register(in RegisterInput) (*UserDTO, error) {
	if in.Role != models.RoleDoctor && in.Role != models.RolePatient {
		return nil, ErrInvalidRole
	}
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Role:         in.Role,
		Gender:       in.Gender,
	}
	if in.DateBirth != "" {
		if t, err := time.Parse("2006-01-02", in.DateBirth); err == nil {
			user.DateBirth = &t
		}
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"-"`
}

// Login 校验邮箱密码并签发 token 对。
func (s *UserService) Login(email, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, err := auth.GenerateAccessToken(user.ID, user.Role, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return nil, err
	}
	rt, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	exp := time.Now().Add(time.Duration(s.cfg.RefreshTokenTTLDays) * 24 * time.Hour)
	if err := auth.SaveRefreshToken(s.db, user.ID, rt, exp); err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, RefreshToken: rt, User: user}, nil
}

// RefreshResult 刷新 token 后返回的新 token 对。
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokens 验证旧 refresh token 并签发新 token 对（旋转刷新）。
func (s *UserService) RefreshTokens(oldRT string) (*RefreshResult, error) {
	var result RefreshResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := auth.ValidateRefreshToken(tx, oldRT)
		if err != nil {
			return err
		}
		if err := auth.RevokeRefreshToken(tx, oldRT); err != nil {
			return err
		}
		var user models.User
		if err := tx.First(&user, rec.UserID).Error; err != nil {
			return err
		}
		at, err := auth.GenerateAccessToken(user.ID, user.Role, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
		if err != nil {
			return err
		}
		newRT, err := auth.GenerateRefreshToken()
		if err != nil {
			return err
		}
		exp := time.Now().Add(time.Duration(s.cfg.RefreshTokenTTLDays) * 24 * time.Hour)
		if err := auth.SaveRefreshToken(tx, user.ID, newRT, exp); err != nil {
			return err
		}
		result.AccessToken = at
		result.RefreshToken = newRT
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Doctors 返回医生目录，患者发起会话和预约时用。
func (s *UserService) Doctors() ([]UserDTO, error) {
	var doctors []models.User
	if err := s.db.Where("role = ?", models.RoleDoctor).Order("last_name").Find(&doctors).Error; err != nil {
		return nil, err
	}
	out := make([]UserDTO, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, toUserDTO(d))
	}
	return out, nil
}

// ByID 按 ID 取用户。
func (s *UserService) ByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// Profile 返回当前用户的资料。
func (s *UserService) Profile(user models.User) UserDTO {
	return toUserDTO(user)
}
