package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"regportal/models"
	"regportal/pkg/flow"
	"regportal/pkg/render"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.GET("/profile", getProfileHandler)
	authGroup.POST("/profile/step1", saveStep1Handler)
	authGroup.POST("/profile/step2", saveStep2Handler)
	authGroup.POST("/profile/submit", submitHandler)
	authGroup.POST("/profile/photo", uploadPhotoHandler)
	authGroup.GET("/pass", downloadPassHandler)
	authGroup.GET("/admin/profiles", listProfilesHandler)
	authGroup.GET("/admin/profiles/:id", getProfileByIDHandler)
	authGroup.GET("/admin/export", exportProfilesHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		c.Set("username", username)
		c.Next()
	}
}

// getCallerFromContext loads the authenticated account and resolves its role
// from the database. The token carries only the username; the role is
// re-read per request so policy never acts on a stale admin flag.
func getCallerFromContext(c *gin.Context) (Caller, bool) {
	unameVal, _ := c.Get("username")
	if unameVal == nil {
		return Caller{}, false
	}
	uname := unameVal.(string)
	var user models.User
	if err := db.Where("username = ?", uname).First(&user).Error; err != nil {
		return Caller{}, false
	}
	return Caller{UserID: user.ID, Username: user.Username, Role: roleName(&user)}, true
}

// writeStoreError maps store/flow errors onto the HTTP surface. Validation
// failures carry field-level detail; everything else is a single message.
func writeStoreError(c *gin.Context, err error) {
	var ferr flow.FieldErrors
	switch {
	case errors.As(err, &ferr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ferr})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
	case errors.Is(err, flow.ErrSubmitted), errors.Is(err, flow.ErrStepOrder),
		errors.Is(err, flow.ErrNotReady), errors.Is(err, flow.ErrNotConfirmed),
		errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func profileResponse(p *models.Profile) gin.H {
	return gin.H{
		"profile": p,
		"state":   flow.Derive(p.FormStep, p.IsSubmitted),
	}
}

func meHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	resp := gin.H{"username": caller.Username, "role": caller.Role}
	if p, err := store.Get(caller, caller.UserID); err == nil {
		resp["state"] = flow.Derive(p.FormStep, p.IsSubmitted)
		resp["form_step"] = p.FormStep
	}
	c.JSON(http.StatusOK, resp)
}

func getProfileHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	p, err := store.Get(caller, caller.UserID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse(p))
}

func saveStep1Handler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var in flow.Step1Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := store.SaveStep1(caller, caller.UserID, in)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse(p))
}

func saveStep2Handler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var in flow.Step2Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := store.SaveStep2(caller, caller.UserID, in)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse(p))
}

func submitHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := store.Submit(caller, caller.UserID, req.Confirm)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse(p))
}

// uploadPhotoHandler stores the applicant's photo under a fresh object key
// and records the reference on the profile. Re-uploading before submission
// replaces the reference; the old file is kept for the admin audit trail.
func uploadPhotoHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	p, err := store.Get(caller, caller.UserID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	if p.IsSubmitted {
		writeStoreError(c, flow.ErrSubmitted)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > 5*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 5MB)"})
		return
	}
	ct := file.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only image uploads are accepted"})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	key := uuid.NewString() + ext
	relPath := "photos/" + key
	fullPath := filepath.Join(uploadBaseDir(), relPath)
	if err := os.MkdirAll(photoDir(), 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	up := models.Upload{
		ProfileID:   p.ID,
		FileName:    file.Filename,
		ObjectKey:   key,
		StorePath:   relPath,
		ContentType: ct,
	}
	if err := db.Create(&up).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}
	// the reference lands on the profile only after the file is durable
	p, err = store.SetPhoto(caller, caller.UserID, relPath)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": up.ID, "photo_reference": relPath, "profile": p})
}

// downloadPassHandler streams the rendered pass PDF for a submitted profile.
func downloadPassHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	p, err := store.Get(caller, caller.UserID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	out, err := render.Pass(*p, passPhotoPath(p))
	if err != nil {
		if errors.Is(err, render.ErrNotSubmitted) {
			c.JSON(http.StatusConflict, gin.H{"error": "profile is not submitted"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	name := "pass.pdf"
	if p.PassID != nil {
		name = "pass_" + *p.PassID + ".pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/pdf", out)
}

// passPhotoPath resolves the on-disk photo for rendering, preferring the
// normalized pass-photo variant when the normalizer has produced one.
func passPhotoPath(p *models.Profile) string {
	if p.PhotoReference == "" {
		return ""
	}
	if up, ok := store.latestUpload(p.ID); ok && up.Normalized && up.NormalizedPath != "" {
		return filepath.Join(uploadBaseDir(), up.NormalizedPath)
	}
	return filepath.Join(uploadBaseDir(), p.PhotoReference)
}

func listProfilesHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	items, err := store.ListAll(caller, limit)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func getProfileByIDHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := store.GetByID(caller, uint(id))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse(p))
}

// exportProfilesHandler writes all submitted profiles as CSV (admin only).
func exportProfilesHandler(c *gin.Context) {
	caller, ok := getCallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	items, err := store.ListSubmitted(caller)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="registrations.csv"`)
	c.Header("Content-Type", "text/csv")
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"pass_id", "name", "email", "contact", "gender", "date_of_birth", "age", "district", "category", "highest_qualification", "submitted_at"})
	for _, p := range items {
		passID := ""
		if p.PassID != nil {
			passID = *p.PassID
		}
		_ = w.Write([]string{
			passID, p.Name, p.Email, p.Contact, p.Gender, p.DateOfBirth,
			strconv.Itoa(p.Age), p.District, p.Category, p.HighestQualification,
			p.UpdatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	// first successful authentication creates the empty registration record
	profile, err := ensureProfile(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare registration record"})
		return
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "login successful",
		"token":         tokenString,
		"refresh_token": refreshToken,
		"state":         flow.Derive(profile.FormStep, profile.IsSubmitted),
	})
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(userID uint) (string, error) {
	// generate random 32-byte token (hex)
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	// hash for storage
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

// helper to find refresh token record by raw token string
func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"exp":      time.Now().Add(15 * time.Minute).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// rotate refresh token: revoke existing and create new one
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}
